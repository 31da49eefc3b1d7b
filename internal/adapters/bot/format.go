package bot

import (
	"fmt"
	"strings"

	"github.com/zhural-2025/Smm-travel-bot/internal/domain"
)

var weekdayNames = []string{"Пн", "Вт", "Ср", "Чт", "Пт", "Сб", "Вс"}

// FormatSchedule возвращает человекочитаемое описание расписания.
func FormatSchedule(sched domain.Schedule) string {
	var b strings.Builder
	b.WriteString("⏰ Расписание публикаций\n")
	switch sched.Frequency {
	case domain.FrequencyDaily:
		b.WriteString(fmt.Sprintf("Каждый день в %s", sched.Time))
	case domain.FrequencyWeekly:
		b.WriteString(fmt.Sprintf("По дням: %s в %s", formatDays(sched.DaysOfWeek), sched.Time))
	default:
		b.WriteString(fmt.Sprintf("%s в %s", sched.Frequency, sched.Time))
	}
	if sched.LastRun != nil {
		b.WriteString(fmt.Sprintf("\nПоследний запуск: %s", sched.LastRun.Format("02.01.2006 15:04")))
	}
	return b.String()
}

func formatDays(daysOfWeek string) string {
	parts := strings.Split(daysOfWeek, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		idx := -1
		fmt.Sscanf(strings.TrimSpace(part), "%d", &idx)
		if idx >= 0 && idx < len(weekdayNames) {
			names = append(names, weekdayNames[idx])
		}
	}
	if len(names) == 0 {
		return daysOfWeek
	}
	return strings.Join(names, ", ")
}

// FormatPost возвращает полное представление поста для администратора.
func FormatPost(post domain.Post) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📄 Пост #%d %s\n", post.ID, statusEmoji(post)))
	b.WriteString(fmt.Sprintf("📌 Тема: %s\n", post.Topic))
	b.WriteString(fmt.Sprintf("🗓 Создан: %s\n", post.CreatedAt.Format("02.01.2006 15:04")))
	if post.PublishedAt != nil {
		b.WriteString(fmt.Sprintf("📤 Опубликован: %s\n", post.PublishedAt.Format("02.01.2006 15:04")))
	}
	if post.ImageURL != "" {
		b.WriteString("🖼 С изображением\n")
	}
	b.WriteString("\n" + post.Content)
	return b.String()
}

func formatPostLine(post domain.Post) string {
	topic := post.Topic
	if topic == "" {
		topic = "(без темы)"
	}
	return fmt.Sprintf("%s #%d %s — %s\n", statusEmoji(post), post.ID, post.CreatedAt.Format("02.01 15:04"), topic)
}

// previewText обрезает контент для превью в ответе администратору.
func previewText(content string) string {
	runes := []rune(content)
	if len(runes) <= 500 {
		return content
	}
	return string(runes[:500]) + "..."
}

func statusEmoji(post domain.Post) string {
	if post.Status() == domain.StatusPublished {
		return "✅"
	}
	return "📝"
}

package telegram

// Telegram ограничивает подпись к фото 1024 символами.
const captionLimit = 1024

const captionContinuation = "...\n\n👇 Читать полностью ниже"

// TruncateCaption укорачивает текст под лимит подписи к фото.
// Возвращает подпись и признак того, что текст был обрезан и
// полный вариант нужно отправить отдельным сообщением.
func TruncateCaption(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= captionLimit {
		return text, false
	}
	cut := captionLimit - len([]rune(captionContinuation))
	return string(runes[:cut]) + captionContinuation, true
}

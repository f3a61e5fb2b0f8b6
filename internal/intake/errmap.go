package intake

import "strings"

// accentFolder lowers the handful of accented vowels that appear in the
// service's Spanish validation messages so keyword matching is
// accent-insensitive.
var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u",
	"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u",
)

func foldMessage(msg string) string {
	return accentFolder.Replace(strings.ToLower(msg))
}

// MapServerMessages assigns each server validation message to an intake
// field by sniffing for domain keywords, the same best-effort contract the
// service's own UI relies on. Pressure messages land on both pressure
// fields. Messages matching no keyword are returned in dropped; the message
// format is an unversioned external contract, so nothing stricter is
// attempted.
func MapServerMessages(msgs []string) (mapped FieldErrors, dropped []string) {
	mapped = FieldErrors{}
	for _, msg := range msgs {
		text := foldMessage(msg)
		switch {
		case strings.Contains(text, "temperatura"):
			mapped["temp"] = msg
		case strings.Contains(text, "frecuencia"):
			mapped["frecuencia_cardiaca"] = msg
		case strings.Contains(text, "presion"):
			mapped["pas"] = msg
			mapped["pad"] = msg
		case strings.Contains(text, "oxigeno"):
			mapped["oxigeno"] = msg
		default:
			dropped = append(dropped, msg)
		}
	}
	return mapped, dropped
}

package notify

import (
	"golang.org/x/text/language"
)

// Key names a localized message.
type Key string

const (
	KeyFetchFailed     Key = "fetch_failed"
	KeyRefundPending   Key = "refund_pending"
	KeyRefundRequested Key = "refund_requested"
	KeyRefundFailed    Key = "refund_failed"
	KeyEscrowReleased  Key = "escrow_released"
	KeyEscrowFailed    Key = "escrow_failed"
)

type Message struct {
	Title       string
	Description string
}

// Catalog resolves message keys for a locale. The first registered language
// is the fallback.
type Catalog struct {
	tags     []language.Tag
	matcher  language.Matcher
	messages map[language.Tag]map[Key]Message
}

func NewCatalog() *Catalog {
	messages := map[language.Tag]map[Key]Message{
		language.English: {
			KeyFetchFailed:     {"Could not load transactions", "Something went wrong. Please try again."},
			KeyRefundPending:   {"Requesting refund", "Your refund request is being processed."},
			KeyRefundRequested: {"Refund requested", "We will let you know once it is processed."},
			KeyRefundFailed:    {"Refund request failed", "Something went wrong. Please try again."},
			KeyEscrowReleased:  {"Funds released", "The escrow has been released to the payee."},
			KeyEscrowFailed:    {"Could not release funds", "Something went wrong. Please try again."},
		},
		language.Spanish: {
			KeyFetchFailed:     {"No se pudieron cargar las transacciones", "Algo salió mal. Inténtalo de nuevo."},
			KeyRefundPending:   {"Solicitando reembolso", "Tu solicitud de reembolso se está procesando."},
			KeyRefundRequested: {"Reembolso solicitado", "Te avisaremos cuando se procese."},
			KeyRefundFailed:    {"La solicitud de reembolso falló", "Algo salió mal. Inténtalo de nuevo."},
			KeyEscrowReleased:  {"Fondos liberados", "El depósito en garantía se liberó al beneficiario."},
			KeyEscrowFailed:    {"No se pudieron liberar los fondos", "Algo salió mal. Inténtalo de nuevo."},
		},
		language.German: {
			KeyFetchFailed:     {"Transaktionen konnten nicht geladen werden", "Etwas ist schiefgelaufen. Bitte versuche es erneut."},
			KeyRefundPending:   {"Rückerstattung wird angefordert", "Deine Anfrage wird bearbeitet."},
			KeyRefundRequested: {"Rückerstattung angefordert", "Wir melden uns, sobald sie bearbeitet ist."},
			KeyRefundFailed:    {"Rückerstattung fehlgeschlagen", "Etwas ist schiefgelaufen. Bitte versuche es erneut."},
			KeyEscrowReleased:  {"Mittel freigegeben", "Das Treuhandguthaben wurde an den Empfänger freigegeben."},
			KeyEscrowFailed:    {"Freigabe fehlgeschlagen", "Etwas ist schiefgelaufen. Bitte versuche es erneut."},
		},
	}
	tags := []language.Tag{language.English, language.Spanish, language.German}
	return &Catalog{
		tags:     tags,
		matcher:  language.NewMatcher(tags),
		messages: messages,
	}
}

// Lookup returns the message for key in the closest supported language to
// locale, falling back to English. Unknown keys yield the key as title.
func (c *Catalog) Lookup(locale string, key Key) Message {
	tag := c.tags[0]
	if locale != "" {
		if parsed, err := language.Parse(locale); err == nil {
			_, idx, conf := c.matcher.Match(parsed)
			if conf != language.No {
				tag = c.tags[idx]
			}
		}
	}
	if msg, ok := c.messages[tag][key]; ok {
		return msg
	}
	if msg, ok := c.messages[c.tags[0]][key]; ok {
		return msg
	}
	return Message{Title: string(key)}
}

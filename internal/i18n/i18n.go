// Package i18n translates the handful of user-facing strings tabs and menus show.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The English text doubles as the key.
const (
	PressAnyKeyToReconnect  = "Press any key to reconnect"
	Saved                   = "Saved"
	NewTerminal             = "New terminal"
	NewWithProfile          = "New with profile"
	NewAdminTab             = "New admin tab"
	DuplicateAsAdmin        = "Duplicate as administrator"
	SaveAsProfile           = "Save as profile"
	Reconnect               = "Reconnect"
	ProfileCopyName         = "%s (copy)"
	ProfileNamePrompt       = "New profile name"
	SessionEnded            = "Session ended"
	ReconnectFailed         = "Reconnect failed: %s"
	DefaultShellProfileName = "Default shell"
)

var supported = []language.Tag{
	language.English, // first entry is the fallback
	language.German,
	language.French,
}

var translations = map[language.Tag]map[string]string{
	language.German: {
		PressAnyKeyToReconnect:  "Beliebige Taste drücken, um neu zu verbinden",
		Saved:                   "Gespeichert",
		NewTerminal:             "Neues Terminal",
		NewWithProfile:          "Neu mit Profil",
		NewAdminTab:             "Neuer Admin-Tab",
		DuplicateAsAdmin:        "Als Administrator duplizieren",
		SaveAsProfile:           "Als Profil speichern",
		Reconnect:               "Neu verbinden",
		ProfileCopyName:         "%s (Kopie)",
		ProfileNamePrompt:       "Name des neuen Profils",
		SessionEnded:            "Sitzung beendet",
		ReconnectFailed:         "Neu verbinden fehlgeschlagen: %s",
		DefaultShellProfileName: "Standard-Shell",
	},
	language.French: {
		PressAnyKeyToReconnect:  "Appuyez sur une touche pour vous reconnecter",
		Saved:                   "Enregistré",
		NewTerminal:             "Nouveau terminal",
		NewWithProfile:          "Nouveau avec le profil",
		NewAdminTab:             "Nouvel onglet administrateur",
		DuplicateAsAdmin:        "Dupliquer en tant qu'administrateur",
		SaveAsProfile:           "Enregistrer comme profil",
		Reconnect:               "Se reconnecter",
		ProfileCopyName:         "%s (copie)",
		ProfileNamePrompt:       "Nom du nouveau profil",
		SessionEnded:            "Session terminée",
		ReconnectFailed:         "Échec de la reconnexion : %s",
		DefaultShellProfileName: "Shell par défaut",
	},
}

var (
	cat     = buildCatalog()
	matcher = language.NewMatcher(supported)
)

func buildCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			_ = b.SetString(tag, key, msg)
		}
	}
	return b
}

// Translator renders messages in one language.
type Translator struct {
	tag     language.Tag
	printer *message.Printer
}

// New returns a translator for lang (a BCP 47 tag or a POSIX locale such as
// "de_DE.UTF-8"). Empty lang falls back to $LC_ALL, $LC_MESSAGES and $LANG.
// Unsupported languages resolve to English.
func New(lang string) *Translator {
	if lang == "" {
		lang = FromEnv()
	}
	tag := Match(lang)
	return &Translator{
		tag:     tag,
		printer: message.NewPrinter(tag, message.Catalog(cat)),
	}
}

// Match resolves lang to the closest supported language.
func Match(lang string) language.Tag {
	parsed, err := language.Parse(normalizePOSIX(lang))
	if err != nil {
		return language.English
	}
	_, idx, conf := matcher.Match(parsed)
	if conf == language.No {
		return language.English
	}
	return supported[idx]
}

// FromEnv returns the first locale set in the environment.
func FromEnv() string {
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(k); v != "" && v != "C" && v != "POSIX" {
			return v
		}
	}
	return ""
}

func normalizePOSIX(s string) string {
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	return strings.ReplaceAll(s, "_", "-")
}

// Language returns the resolved language tag.
func (t *Translator) Language() language.Tag {
	return t.tag
}

// T translates key, formatting args into it.
func (t *Translator) T(key string, args ...any) string {
	return t.printer.Sprintf(key, args...)
}

// Title capitalises a label such as a profile type for the current language.
func (t *Translator) Title(s string) string {
	// Casers are stateful; never share one across goroutines.
	return cases.Title(t.tag).String(s)
}

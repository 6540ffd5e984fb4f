package theme

import (
	"net/http"
	"time"
)

const CookieName = "theme"

type Theme string

const (
	Light Theme = "light"
	Dark  Theme = "dark"
)

// FromRequest reads the theme cookie, light when absent or unknown.
func FromRequest(r *http.Request) Theme {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return Light
	}
	if Theme(c.Value) == Dark {
		return Dark
	}
	return Light
}

func (t Theme) Toggle() Theme {
	if t == Dark {
		return Light
	}
	return Dark
}

// ToggleLabel is the text of the button that switches away from t.
func (t Theme) ToggleLabel() string {
	if t == Dark {
		return "Light Mode"
	}
	return "Dark Mode"
}

// BodyClass is the CSS class applied to the page body.
func (t Theme) BodyClass() string {
	if t == Dark {
		return "dark-mode"
	}
	return ""
}

func Set(w http.ResponseWriter, t Theme) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    string(t),
		Path:     "/",
		Expires:  time.Now().Add(365 * 24 * time.Hour),
		SameSite: http.SameSiteLaxMode,
	})
}

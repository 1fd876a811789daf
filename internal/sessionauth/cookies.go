package sessionauth

import (
	"net/http"
	"time"
)

// SetTokenCookies stores the session tokens as secure, HTTP only cookies.
func SetTokenCookies(w http.ResponseWriter, idToken, accessToken, refreshToken string) {
	for name, value := range map[string]string{
		CookieIDToken:      idToken,
		CookieAccessToken:  accessToken,
		CookieRefreshToken: refreshToken,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			Secure:   true,
			HttpOnly: true,
		})
	}
}

// SetRedirectCookie remembers where to send the user after login.
func SetRedirectCookie(w http.ResponseWriter, target string) {
	http.SetCookie(w, &http.Cookie{Name: CookieRedirect, Value: target, Path: "/", HttpOnly: true})
}

// RedirectTarget returns the stored post login location.
func RedirectTarget(r *http.Request) string {
	return cookieValue(r, CookieRedirect)
}

// DeleteCookies expires the named cookies.
func DeleteCookies(w http.ResponseWriter, names ...string) {
	for _, name := range names {
		http.SetCookie(w, &http.Cookie{
			Name:    name,
			Value:   "",
			Path:    "/",
			MaxAge:  -1,
			Expires: time.Unix(0, 0),
		})
	}
}

package firmware

import (
	"strings"
)

const (
	placeholderPrefix = "PUT_YOUR_"

	maxSSIDBytes     = 32
	minPassphraseLen = 8
	maxPassphraseLen = 63
	redactedValue    = "********"
)

// Credentials is the bundle compiled into config.h: the cloud dashboard
// template and token plus the WiFi network the nodes join.
type Credentials struct {
	TemplateID   string `json:"template_id"`
	TemplateName string `json:"template_name"`
	AuthToken    string `json:"auth_token"`
	WiFiSSID     string `json:"wifi_ssid"`
	WiFiPassword string `json:"wifi_password"`
}

// TemplateCredentials returns the copy-and-fill values shipped with the
// firmware.
func TemplateCredentials() Credentials {
	return Credentials{
		TemplateID:   placeholderPrefix + "TEMPLATE_ID",
		TemplateName: placeholderPrefix + "TEMPLATE_NAME",
		AuthToken:    placeholderPrefix + "BLYNK_TOKEN",
		WiFiSSID:     placeholderPrefix + "WIFI_SSID",
		WiFiPassword: placeholderPrefix + "WIFI_PASSWORD",
	}
}

// IsPlaceholder reports whether v is one of the template markers.
func IsPlaceholder(v string) bool {
	return strings.HasPrefix(strings.TrimSpace(v), placeholderPrefix)
}

type setting struct {
	symbol string
	value  string
}

func (c Credentials) settings() []setting {
	return []setting{
		{SymTemplateID, c.TemplateID},
		{SymTemplateName, c.TemplateName},
		{SymAuthToken, c.AuthToken},
		{SymWiFiSSID, c.WiFiSSID},
		{SymWiFiPassword, c.WiFiPassword},
	}
}

// Placeholders lists the symbols that are still empty or template markers.
func (c Credentials) Placeholders() []string {
	var out []string
	for _, s := range c.settings() {
		if strings.TrimSpace(s.value) == "" || IsPlaceholder(s.value) {
			out = append(out, s.symbol)
		}
	}
	return out
}

// Validate checks the bundle can be deployed.
func (c Credentials) Validate() error {
	var r Report
	c.check(&r)
	return r.Err()
}

func (c Credentials) check(r *Report) {
	for _, s := range c.settings() {
		switch {
		case strings.TrimSpace(s.value) == "":
			r.add(CodeMissing, s.symbol, "value is empty")
		case IsPlaceholder(s.value):
			r.add(CodePlaceholder, s.symbol, "template value %q not replaced", s.value)
		}
	}

	if !IsPlaceholder(c.WiFiSSID) && len(c.WiFiSSID) > maxSSIDBytes {
		r.add(CodeInvalidValue, SymWiFiSSID, "ssid is %d bytes, max %d", len(c.WiFiSSID), maxSSIDBytes)
	}
	if c.WiFiPassword != "" && !IsPlaceholder(c.WiFiPassword) {
		if n := len(c.WiFiPassword); n < minPassphraseLen || n > maxPassphraseLen {
			r.add(CodeInvalidValue, SymWiFiPassword, "passphrase is %d characters, want %d-%d", n, minPassphraseLen, maxPassphraseLen)
		}
	}
}

// Redacted masks the token and WiFi password. Placeholders are kept so a
// redacted template still reads as a template.
func (c Credentials) Redacted() Credentials {
	c.AuthToken = redact(c.AuthToken)
	c.WiFiPassword = redact(c.WiFiPassword)
	return c
}

func redact(v string) string {
	if v == "" || IsPlaceholder(v) {
		return v
	}
	return redactedValue
}

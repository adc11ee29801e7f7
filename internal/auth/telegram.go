package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

// webAppDataKey is the fixed HMAC key Telegram uses to derive the
// per-bot secret from the bot token.
const webAppDataKey = "WebAppData"

// authDateSkew is how far in the future auth_date may be.
const authDateSkew = 5 * time.Second

// ErrInvalidInitData is the cause of every rejected init-data payload.
var ErrInvalidInitData = errors.New("invalid init data")

func invalidInitData(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInitData, fmt.Sprintf(format, args...))
}

// WebAppUser is the "user" object embedded in Mini-App init data.
type WebAppUser struct {
	ID              int64   `json:"id"`
	FirstName       string  `json:"first_name"`
	LastName        *string `json:"last_name,omitempty"`
	Username        *string `json:"username,omitempty"`
	LanguageCode    *string `json:"language_code,omitempty"`
	PhotoURL        *string `json:"photo_url,omitempty"`
	IsBot           bool    `json:"is_bot,omitempty"`
	IsPremium       bool    `json:"is_premium,omitempty"`
	AllowsWriteToPM bool    `json:"allows_write_to_pm,omitempty"`
}

// InitData is a verified init-data payload.
type InitData struct {
	QueryID      string
	AuthDate     time.Time
	ChatType     string
	ChatInstance string
	StartParam   string
	Hash         string
	User         WebAppUser
}

// TelegramConfig configures a TelegramValidator.
type TelegramConfig struct {
	BotToken    string
	Environment string        // production or development
	MaxAge      time.Duration // 0 disables the auth_date freshness check
	Now         func() time.Time
}

// TelegramValidator verifies init data signed with a bot token.
type TelegramValidator struct {
	secret []byte
	dev    bool
	maxAge time.Duration
	now    func() time.Time
}

// NewTelegramValidator returns a validator for cfg. Production requires a
// bot token; development never looks at the payload and always yields the
// fixed developer identity.
func NewTelegramValidator(cfg TelegramConfig) (*TelegramValidator, error) {
	switch cfg.Environment {
	case EnvProduction:
		if cfg.BotToken == "" {
			return nil, errors.New("auth: bot token is required in production")
		}
	case EnvDevelopment:
	default:
		return nil, fmt.Errorf("auth: unknown environment %q", cfg.Environment)
	}
	if cfg.MaxAge < 0 {
		return nil, errors.New("auth: init data max age must not be negative")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &TelegramValidator{
		secret: secretKey(cfg.BotToken),
		dev:    cfg.Environment == EnvDevelopment,
		maxAge: cfg.MaxAge,
		now:    now,
	}, nil
}

// DevelopmentUser is returned by Validate in development mode.
func DevelopmentUser() *WebAppUser {
	return &WebAppUser{ID: 1, FirstName: "developer"}
}

// Validate returns the user asserted by raw once its signature checks out.
func (v *TelegramValidator) Validate(raw string) (*WebAppUser, error) {
	if v.dev {
		return DevelopmentUser(), nil
	}
	data, err := v.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &data.User, nil
}

// Parse verifies raw and decodes every known field. Unlike Validate it
// never takes the development shortcut.
func (v *TelegramValidator) Parse(raw string) (*InitData, error) {
	if raw == "" {
		return nil, invalidInitData("empty payload")
	}

	values, err := url.ParseQuery(raw)
	if err != nil {
		return nil, invalidInitData("malformed query string")
	}

	fields := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) != 1 {
			return nil, invalidInitData("duplicate key %q", k)
		}
		fields[k] = vs[0]
	}

	hash := fields["hash"]
	if hash == "" {
		return nil, invalidInitData("missing hash")
	}
	delete(fields, "hash")

	got, err := hex.DecodeString(hash)
	if err != nil {
		return nil, invalidInitData("hash is not hex")
	}
	if !hmac.Equal(got, sign(v.secret, dataCheckString(fields))) {
		return nil, invalidInitData("hash mismatch")
	}

	data := &InitData{
		QueryID:      fields["query_id"],
		ChatType:     fields["chat_type"],
		ChatInstance: fields["chat_instance"],
		StartParam:   fields["start_param"],
		Hash:         hash,
	}

	if s, ok := fields["auth_date"]; ok {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, invalidInitData("auth_date is not a unix timestamp")
		}
		data.AuthDate = time.Unix(sec, 0)
	}
	if err := v.checkFreshness(data.AuthDate); err != nil {
		return nil, err
	}

	userJSON, ok := fields["user"]
	if !ok {
		return nil, invalidInitData("missing user")
	}
	if err := json.Unmarshal([]byte(userJSON), &data.User); err != nil {
		return nil, invalidInitData("user is not valid JSON")
	}

	return data, nil
}

func (v *TelegramValidator) checkFreshness(authDate time.Time) error {
	if v.maxAge == 0 {
		return nil
	}
	if authDate.IsZero() {
		return invalidInitData("missing auth_date")
	}
	now := v.now()
	if authDate.After(now.Add(authDateSkew)) {
		return invalidInitData("auth_date is in the future")
	}
	if now.Sub(authDate) > v.maxAge {
		return invalidInitData("auth_date is older than %s", v.maxAge)
	}
	return nil
}

// SignInitData returns fields encoded as init data with a valid hash for
// botToken. Any existing "hash" entry is replaced.
func SignInitData(botToken string, fields url.Values) string {
	flat := make(map[string]string, len(fields))
	out := url.Values{}
	for k, vs := range fields {
		if k == "hash" || len(vs) == 0 {
			continue
		}
		flat[k] = vs[0]
		out.Set(k, vs[0])
	}
	out.Set("hash", hex.EncodeToString(sign(secretKey(botToken), dataCheckString(flat))))
	return out.Encode()
}

// dataCheckString joins "key=value" pairs sorted by key with newlines.
func dataCheckString(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
	}
	return b.String()
}

func secretKey(botToken string) []byte {
	return sign([]byte(webAppDataKey), botToken)
}

func sign(key []byte, msg string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(msg))
	return mac.Sum(nil)
}

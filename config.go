package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"gitlab.com/zephyrtronium/tmi"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/kappatan/kappatan/auth"
	"github.com/kappatan/kappatan/channel"
	"github.com/kappatan/kappatan/message"
	"github.com/kappatan/kappatan/store/kvstore"
	"github.com/kappatan/kappatan/store/sqlstore"
	"github.com/kappatan/kappatan/twitch"
)

// Load loads the bot's TOML configuration.
func Load(ctx context.Context, r io.Reader) (*Config, *toml.MetaData, error) {
	var cfg Config
	md, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't decode config: %w", err)
	}
	expandcfg(&cfg, os.Getenv)
	return &cfg, &md, nil
}

// SetSecrets loads the bot's fixed secret and initializes derived secrets.
func (robo *Bot) SetSecrets(file string) error {
	k, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("couldn't read secret key: %w", err)
	}
	tk := domainkey(make([]byte, auth.KeySize), k, []byte("oauth2.twitch"))
	robo.secrets = &keys{
		twitch: (*[auth.KeySize]byte)(tk),
	}
	return nil
}

// SetStore opens the template and points store around the respective database.
// Use [loadDBs] to open the databases themselves from DSNs.
// Panics if both kv and sql are nil.
func (robo *Bot) SetStore(ctx context.Context, kv *badger.DB, sql *sqlitex.Pool) error {
	if sql == nil {
		if kv == nil {
			panic("kappatan: no store")
		}
		robo.store = kvstore.New(kv)
		return nil
	}
	s, err := sqlstore.Open(ctx, sql)
	if err != nil {
		return fmt.Errorf("couldn't open store: %w", err)
	}
	robo.store = s
	return nil
}

// InitTwitch initializes the Twitch and TMI clients.
// It must be called after SetSecrets.
// If account is nonzero, it overrides the bot's own user ID as the account
// from which points are given.
func (robo *Bot) InitTwitch(ctx context.Context, cfg ClientCfg, account int64) error {
	cfg.endpoint = oauth2.Endpoint{
		DeviceAuthURL: "https://id.twitch.tv/oauth2/device",
		TokenURL:      "https://id.twitch.tv/oauth2/token",
	}
	send := make(chan *tmi.Message, 1)
	recv := make(chan *tmi.Message, 8) // 8 is enough for on-connect msgs
	client := &http.Client{Timeout: 30 * time.Second}
	robo.twitch = twitch.Client{HTTP: client, ID: cfg.CID}
	tm, err := loadClient(
		cfg,
		send,
		recv,
		func(c oauth2.Config, s auth.Storage) auth.TokenSource {
			return auth.DeviceCodeFlow(c, s, client, deviceCodePrompt)
		},
		*robo.secrets.twitch,
		"chat:read", "chat:edit",
	)
	if err != nil {
		return fmt.Errorf("couldn't load TMI client: %w", err)
	}
	robo.tmi = tm
	// Helix requests don't need the chat token; an app access token works for
	// everything we ask of the API.
	secret, err := os.ReadFile(cfg.SecretFile)
	if err != nil {
		return fmt.Errorf("couldn't read client secret: %w", err)
	}
	robo.helix = auth.ClientCredentialsFlow(oauth2.Config{
		ClientID:     cfg.CID,
		ClientSecret: string(secret),
		Endpoint:     cfg.endpoint,
	}, client)
	// Validate the Twitch access token now to get our user ID and login.
	tok, err := robo.tmi.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("couldn't obtain Twitch access token: %w", err)
	}
	for range 5 {
		val, err := twitch.Validate(ctx, robo.twitch.HTTP, tok)
		slog.InfoContext(ctx, "Twitch validation", slog.Any("response", val), slog.Any("err", err))
		switch {
		case err == nil: // do nothing
		case errors.Is(err, twitch.ErrNeedRefresh):
			tok, err = robo.tmi.tokens.Refresh(ctx, tok)
			if err != nil {
				return fmt.Errorf("couldn't refresh Twitch token: %w", err)
			}
			continue
		default:
			return fmt.Errorf("couldn't validate Twitch token: %w", err)
		}
		robo.tmi.name = val.Login
		robo.tmi.userID = val.UserID
		id, err := strconv.ParseInt(val.UserID, 10, 64)
		if err != nil {
			return fmt.Errorf("couldn't parse own user ID %q: %w", val.UserID, err)
		}
		robo.botID = id
		if account != 0 {
			robo.botID = account
		}
		return nil
	}
	return fmt.Errorf("gave up on validation attempts")
}

// SetTwitchChannels initializes Twitch channel configuration.
// It must be called after InitTwitch.
func (robo *Bot) SetTwitchChannels(ctx context.Context, channels map[string]*ChannelCfg) error {
	tok, err := robo.helix.Token(ctx)
	if err != nil {
		return fmt.Errorf("couldn't obtain Helix token: %w", err)
	}
	var in []twitch.User
	for _, ch := range channels {
		for _, p := range ch.Channels {
			in = append(in, twitch.User{Login: strings.ToLower(strings.TrimPrefix(p, "#"))})
		}
	}
	known := make(map[string]twitch.User, len(in))
	for len(in) > 0 {
		l := in[:min(len(in), 100)]
		in = in[len(l):]
		for {
			r, err := twitch.Users(ctx, robo.twitch, tok, l)
			switch {
			case err == nil: // do nothing
			case errors.Is(err, twitch.ErrNeedRefresh):
				tok, err = robo.helix.Refresh(ctx, tok)
				if err != nil {
					return fmt.Errorf("couldn't refresh Helix token: %w", err)
				}
				continue
			default:
				return fmt.Errorf("couldn't resolve config Twitch channels: %w", err)
			}
			for _, u := range r {
				slog.InfoContext(ctx, "Twitch channel",
					slog.String("id", u.ID),
					slog.String("login", u.Login),
					slog.String("display", u.DisplayName),
				)
				known[strings.ToLower(u.Login)] = u
			}
			break
		}
	}
	for nm, ch := range channels {
		var ign map[string]bool
		for _, u := range ch.Ignore {
			if ign == nil {
				ign = make(map[string]bool)
			}
			ign[strings.ToLower(u)] = true
		}
		for _, p := range ch.Channels {
			if !strings.HasPrefix(p, "#") {
				p = "#" + p
			}
			if _, ok := known[strings.ToLower(p[1:])]; !ok {
				slog.WarnContext(ctx, "couldn't resolve channel (continuing)",
					slog.String("group", nm),
					slog.String("channel", p),
				)
			}
			v := &channel.Channel{
				Name:   p,
				Rate:   rate.NewLimiter(rate.Every(fseconds(ch.Rate.Every)), ch.Rate.Num),
				Ignore: ign,
			}
			v.Message = func(ctx context.Context, msg message.Sent) {
				if !v.Rate.Allow() {
					slog.InfoContext(ctx, "channel rate limited", slog.String("channel", v.Name))
					return
				}
				robo.sendTMI(ctx, robo.tmi.send, msg)
			}
			robo.channels.Store(p, v)
		}
	}
	return nil
}

func loadDBs(ctx context.Context, cfg DBCfg) (kv *badger.DB, sql *sqlitex.Pool, err error) {
	if cfg.KV != "" && cfg.SQL != "" {
		return nil, nil, fmt.Errorf("multiple store backends requested; use exactly one")
	}
	if cfg.KV == "" && cfg.SQL == "" {
		return nil, nil, fmt.Errorf("no store backends requested; use exactly one")
	}

	if cfg.KV != "" {
		slog.DebugContext(ctx, "using kvstore", slog.String("path", cfg.KV), slog.String("flags", cfg.KVFlag))
		opts := badger.DefaultOptions(cfg.KV)
		opts = opts.WithLogger(nil)
		opts = opts.WithCompression(options.None)
		opts = opts.WithBloomFalsePositive(0)
		kv, err = badger.Open(opts.FromSuperFlag(cfg.KVFlag))
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't open kvstore db: %w", err)
		}
	}
	if cfg.SQL != "" {
		slog.DebugContext(ctx, "using sqlstore", slog.String("path", cfg.SQL))
		sql, err = sqlitex.NewPool(cfg.SQL, sqlitex.PoolOptions{PrepareConn: sqlstore.RecommendedPrep})
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't open sqlstore db: %w", err)
		}
	}

	return kv, sql, nil
}

func fseconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// loadClient loads client configuration from unmarshaled TOML.
func loadClient[Send, Receive any](
	t ClientCfg,
	send chan Send,
	recv chan Receive,
	tokens func(oauth2.Config, auth.Storage) auth.TokenSource,
	key [auth.KeySize]byte,
	scopes ...string,
) (*client[Send, Receive], error) {
	secret, err := os.ReadFile(t.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("couldn't read client secret: %w", err)
	}
	stor, err := auth.NewFileAt(t.TokenFile, key)
	if err != nil {
		return nil, fmt.Errorf("couldn't use refresh token storage: %w", err)
	}
	cfg := oauth2.Config{
		ClientID:     t.CID,
		ClientSecret: string(secret),
		Endpoint:     t.endpoint,
		RedirectURL:  t.RedirectURL,
		Scopes:       scopes,
	}
	return &client[Send, Receive]{
		send:     send,
		recv:     recv,
		clientID: t.CID,
		rate:     rate.NewLimiter(rate.Every(fseconds(t.Rate.Every)), t.Rate.Num),
		tokens:   tokens(cfg, stor),
	}, nil
}

// deviceCodePrompt tells the operator how to authorize the bot account when a
// new refresh token is needed.
func deviceCodePrompt(userCode, verURI, verURIComplete string) {
	if verURIComplete != "" {
		fmt.Printf("\n\tGo to %s to authorize the bot account\n\n", verURIComplete)
		return
	}
	fmt.Printf("\n\tGo to %s and enter code %s to authorize the bot account\n\n", verURI, userCode)
}

type keys struct {
	// twitch is the key for Twitch OAuth2 token storage.
	twitch *[auth.KeySize]byte
}

// domainkey fills o with a key derived from k for the given domain. Panics if
// a key cannot be expanded.
func domainkey(o, k, domain []byte) []byte {
	kr := hkdf.Expand(sha3.New224, k, domain)
	if _, err := io.ReadFull(kr, o); err != nil {
		panic(err)
	}
	return o
}

// Config is the marshaled structure of the bot's configuration.
type Config struct {
	// SecretFile is the path to a file containing a secret key used to encrypt
	// durable secrets like OAuth2 refresh tokens.
	SecretFile string `toml:"secret"`
	// DB is the table of database connection strings.
	DB DBCfg `toml:"db"`
	// HTTP is the configuration for the bot's HTTP API server.
	HTTP HTTPCfg `toml:"http"`
	// Points is the configuration for the points ledger.
	Points PointsCfg `toml:"points"`
	// TMI is the configuration for connecting to Twitch chat.
	TMI ClientCfg `toml:"tmi"`
	// Twitch is the set of channel configurations for twitch. Each key
	// represents a group of one or more channels sharing a config.
	Twitch map[string]*ChannelCfg `toml:"twitch"`
}

// ChannelCfg is the configuration for a channel.
type ChannelCfg struct {
	// Channels is the list of channels using this config.
	Channels []string `toml:"channels"`
	// Rate is the rate limit for interactions.
	Rate Rate `toml:"rate"`
	// Ignore is the list of user login names whose messages are dropped.
	Ignore []string `toml:"ignore"`
}

// HTTPCfg is the configuration for the bot's HTTP API server.
type HTTPCfg struct {
	// Listen is the address on which the API server listens. If empty, the
	// API server doesn't start.
	Listen string `toml:"listen"`
}

// PointsCfg is the configuration for the points ledger.
type PointsCfg struct {
	// Account is the user ID of the account from which the give command takes
	// points. If zero, the bot's own user ID is used.
	Account int64 `toml:"account"`
}

// ClientCfg is the configuration for connecting to an OAuth2 interface.
type ClientCfg struct {
	// CID is the client ID.
	CID string `toml:"cid"`
	// SecretFile is the path to a file containing the client secret.
	SecretFile string `toml:"secret"`
	// RedirectURL is the redirect URL for OAuth2 flows. For clients that don't
	// use authorization code grant flow, it may be unused but still must match
	// the configuration on the platform.
	RedirectURL string `toml:"redirect"`
	// TokenFile is the path to a file in which the bot will persist its OAuth2
	// refresh token. It is encrypted with a key derived from the Config.Secret
	// key.
	TokenFile string `toml:"token"`
	// Rate is the global rate limit for this client.
	Rate Rate `toml:"rate"`

	endpoint oauth2.Endpoint `toml:"-"`
}

// DBCfg is the configuration of databases.
type DBCfg struct {
	SQL    string `toml:"sql"`
	KV     string `toml:"kv"`
	KVFlag string `toml:"kvflag"`
}

// Rate is a rate limit configuration.
type Rate struct {
	Every float64 `toml:"every"`
	Num   int     `toml:"num"`
}

func expandcfg(cfg *Config, expand func(s string) string) {
	fields := []*string{
		&cfg.SecretFile,
		&cfg.DB.SQL,
		&cfg.DB.KV,
		&cfg.DB.KVFlag,
		&cfg.HTTP.Listen,
		&cfg.TMI.CID,
		&cfg.TMI.SecretFile,
		&cfg.TMI.TokenFile,
	}
	for _, f := range fields {
		*f = os.Expand(*f, expand)
	}
	for _, v := range cfg.Twitch {
		for i, s := range v.Channels {
			v.Channels[i] = os.Expand(s, expand)
		}
		for i, s := range v.Ignore {
			v.Ignore[i] = os.Expand(s, expand)
		}
	}
}

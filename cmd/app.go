package cmd

import (
	"context"
	"fmt"
	"strings"

	"ryco/config"
	"ryco/config/storage"
	"ryco/internal/chat"
	"ryco/internal/crypto"
	"ryco/internal/logging"
	"ryco/internal/providers"
	"ryco/internal/relay"
	"ryco/internal/utils"

	"github.com/sirupsen/logrus"
)

// keyringService names the keychain entry that holds the master key
const (
	keyringService = "ryco"
	keyringUser    = "master-key"
)

// app is everything a command needs, built from flags, env and ryco.toml
type app struct {
	rt       *config.Runtime
	log      *logrus.Logger
	settings *config.Manager
	registry *providers.Registry
	keys     *crypto.KeyManager
}

func bootstrap() (*app, error) {
	config.LoadEnvFile()

	home := homeDir
	if home == "" {
		var err error
		if home, err = config.DefaultHome(); err != nil {
			return nil, err
		}
	}

	rt, err := config.LoadRuntime(home)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		rt.LogLevel = logLevel
	}

	log, err := logging.New(rt.LogLevel, logging.Format(rt.LogFormat))
	if err != nil {
		return nil, err
	}

	registry, err := rt.Providers()
	if err != nil {
		return nil, err
	}

	settings, err := config.NewManager(rt.Home, log)
	if err != nil {
		return nil, err
	}
	settings.EnableBackups(storage.NewBackupManager(rt.Backups))

	return &app{
		rt:       rt,
		log:      log,
		settings: settings,
		registry: registry,
		keys:     crypto.NewKeyManager(keyStore(rt)),
	}, nil
}

func keyStore(rt *config.Runtime) crypto.KeyStore {
	if strings.EqualFold(rt.KeyBackend, "keyring") {
		return crypto.NewKeyringKeyStore(keyringService, keyringUser)
	}
	return crypto.NewFileKeyStore(crypto.KeyPath(rt.Home))
}

func (a *app) safety() (chat.SafetyPolicy, error) {
	return chat.ParseSafetyPolicy(a.rt.SafetyPolicy)
}

func (a *app) chatClient() (*chat.Client, error) {
	safety, err := a.safety()
	if err != nil {
		return nil, err
	}
	return chat.NewClient(a.registry, a.settings, a.keys,
		chat.WithRetryPolicy(chat.RetryPolicy{
			MaxRetries: a.rt.MaxRetries,
			BaseDelay:  a.rt.RetryBaseDelay.Duration,
			MaxDelay:   a.rt.RetryMaxDelay.Duration,
		}),
		chat.WithTimeout(a.rt.ChatTimeout.Duration),
		chat.WithSafetyPolicy(safety),
		chat.WithLimits(a.rt.MaxPromptChars, a.rt.MaxProfileChars),
		chat.WithLogger(a.log),
	), nil
}

func (a *app) tester() (*chat.Tester, error) {
	safety, err := a.safety()
	if err != nil {
		return nil, err
	}
	return chat.NewTester(a.registry,
		chat.WithTestTimeout(a.rt.TestTimeout.Duration),
		chat.WithTestSafetyPolicy(safety),
		chat.WithTestLogger(a.log),
	), nil
}

func (a *app) dispatcher() (*relay.Dispatcher, error) {
	client, err := a.chatClient()
	if err != nil {
		return nil, err
	}
	tester, err := a.tester()
	if err != nil {
		return nil, err
	}
	return relay.NewDispatcher(a.registry, a.settings, a.keys, client, tester, a.log), nil
}

// dial connects to the relay named by --relay, or the configured listen
// address
func (a *app) dial(ctx context.Context) (*relay.Client, error) {
	addr := relayURL
	if addr == "" {
		addr = a.rt.ListenAddr
	}
	url := utils.RelayURL(addr, relay.Path)
	if err := utils.ValidateRelayURL(url); err != nil {
		return nil, err
	}
	client, err := relay.Dial(ctx, url, a.log)
	if err != nil {
		return nil, fmt.Errorf("%w (is 'ryco serve' running?)", err)
	}
	return client, nil
}

// storedKey decrypts the saved key for provider
func (a *app) storedKey(provider string) (string, error) {
	s, err := a.settings.Load()
	if err != nil {
		return "", err
	}
	key, ok := a.keys.Decrypt(s.Secret(provider))
	if !ok {
		return "", fmt.Errorf("%w for %s", chat.ErrNoAPIKeyConfigured, provider)
	}
	return key, nil
}

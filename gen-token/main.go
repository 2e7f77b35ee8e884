package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"taskboard/api"
	"taskboard/config"
)

func main() {
	var (
		configPath = flag.StringP("config", "c", os.Getenv("TASKBOARD_CONFIG"), "path to a YAML or JSONC config file")
		count      = flag.Int("count", 1, "number of tokens to generate")
		prefix     = flag.String("prefix", "dev-user", "prefix for generated user IDs when count > 1")
		ttl        = flag.Duration("ttl", time.Hour, "token lifetime")
		output     = flag.StringP("output", "o", "", "file to write generated tokens as a JSON array")
	)
	flag.Parse()

	if *count < 1 {
		log.Fatal("count must be at least 1")
	}
	args := flag.Args()
	if len(args) > 0 && *count > 1 {
		log.Fatal("explicit user ID cannot be provided when generating multiple tokens")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Auth.Secret == "" {
		log.Fatal("tokens can only be minted for HS256 auth; set LOCAL_AUTH_SHARED_SECRET or auth.secret")
	}

	tokens, err := generateTokens([]byte(cfg.Auth.Secret), cfg.Auth.Audience, cfg.Auth.Issuer, *ttl, userIDs(*count, *prefix, args))
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}
	fmt.Print(tokens[0])
}

func userIDs(count int, prefix string, args []string) []string {
	if len(args) > 0 {
		return []string{args[0]}
	}
	if count == 1 {
		return []string{prefix}
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", prefix, i+1)
	}
	return ids
}

func generateTokens(secret []byte, audience, issuer string, ttl time.Duration, ids []string) ([]string, error) {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tok, err := api.SignHMACToken(secret, id, audience, issuer, ttl)
		if err != nil {
			return nil, err
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}

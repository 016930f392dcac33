package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	appconfig "remitlend/config"
	"remitlend/crypto"
	"remitlend/services/lendingd/client"
	"remitlend/services/lendingd/config"
	"remitlend/services/lendingd/server"
)

const (
	keygenCommand   = "keygen"
	addressCommand  = "address"
	tokenCommand    = "token"
	genesisCommand  = "check-genesis"
	poolCommand     = "pool"
	defaultKeystore = "operator.keystore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:], os.Stdout)
	case addressCommand:
		err = runAddress(os.Args[2:], os.Stdout)
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	case genesisCommand:
		err = runCheckGenesis(os.Args[2:], os.Stdout)
	case poolCommand:
		err = runPool(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func passphraseFrom(env string) (string, error) {
	if env == "" {
		return "", nil
	}
	val, ok := os.LookupEnv(env)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", env)
	}
	return val, nil
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Output path for the generated keystore file")
	passEnv := fs.String("pass-env", "", "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	passphrase, err := passphraseFrom(*passEnv)
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(*keystorePath, key, passphrase); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	fmt.Fprintf(out, "Wrote keystore to %s\nAddress: %s\n", *keystorePath, key.PubKey().Address())
	return nil
}

func runAddress(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(addressCommand, flag.ContinueOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Keystore file to read")
	passEnv := fs.String("pass-env", "", "Environment variable containing the keystore passphrase")
	if err := fs.Parse(args); err != nil {
		return err
	}
	passphrase, err := passphraseFrom(*passEnv)
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(*keystorePath, passphrase)
	if err != nil {
		return fmt.Errorf("load keystore: %w", err)
	}
	addr := key.PubKey().Address()
	fmt.Fprintf(out, "%s\n%s\n", addr, addr.Hex())
	return nil
}

// runToken signs a development bearer token for the lending API.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ContinueOnError)
	subject := fs.String("subject", "", "Caller address the token authenticates")
	scopes := fs.String("scopes", server.ScopeLender, "Comma separated scopes (lender,borrower,operator,admin)")
	issuer := fs.String("issuer", "remitlend", "Issuer claim")
	audience := fs.String("audience", "", "Audience claim")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	secretEnv := fs.String("secret-env", "REMITLEND_JWT_SECRET", "Environment variable containing the HMAC secret")
	if err := fs.Parse(args); err != nil {
		return err
	}

	addr, err := crypto.ParseAddress(strings.TrimSpace(*subject))
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	secret, err := passphraseFrom(*secretEnv)
	if err != nil {
		return err
	}
	var list []string
	for _, scope := range strings.Split(*scopes, ",") {
		if trimmed := strings.TrimSpace(scope); trimmed != "" {
			list = append(list, trimmed)
		}
	}
	token, err := server.IssueToken(config.AuthConfig{
		HMACSecret: secret,
		Issuer:     *issuer,
		Audience:   *audience,
	}, addr, list, *ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, token)
	return nil
}

func runCheckGenesis(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(genesisCommand, flag.ContinueOnError)
	path := fs.String("genesis", "genesis.toml", "Genesis file to validate (created with defaults when missing)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	g, err := appconfig.LoadGenesis(*path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "asset=%s base_rate_bps=%d operators=%d approvers=%d allocations=%d\n",
		g.Pool.Asset, g.Pool.BaseRateBps, len(g.Verifier.Operators), len(g.Loans.Approvers), len(g.Alloc))
	return nil
}

func runPool(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(poolCommand, flag.ContinueOnError)
	endpoint := fs.String("url", "http://127.0.0.1:8080", "lendingd base URL")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := client.New(*endpoint)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	pool, err := c.Pool(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "asset:       %s\n", pool.Asset)
	fmt.Fprintf(out, "liquidity:   %s\n", pool.TotalLiquidity)
	fmt.Fprintf(out, "borrowed:    %s\n", pool.TotalBorrowed)
	fmt.Fprintf(out, "available:   %s\n", pool.AvailableLiquidity)
	fmt.Fprintf(out, "interest:    %s earned, %s paid\n", pool.TotalInterestEarned, pool.TotalInterestPaid)
	fmt.Fprintf(out, "utilization: %d/%d bps\n", pool.UtilizationBps, pool.MaxUtilizationBps)
	return nil
}

func usage() {
	fmt.Println("remitctl <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Printf("  %s          Generate an operator key into an encrypted keystore\n", keygenCommand)
	fmt.Printf("  %s         Print the address held by a keystore\n", addressCommand)
	fmt.Printf("  %s           Sign a development API bearer token\n", tokenCommand)
	fmt.Printf("  %s   Validate a genesis file\n", genesisCommand)
	fmt.Printf("  %s            Show pool liquidity from a running lendingd\n", poolCommand)
}

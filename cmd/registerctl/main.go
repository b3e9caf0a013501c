// registerctl enrolls a new model with the coordination service.
//
// It prompts for any identity fields not given as flags, signs the
// server's challenges with the PRIVATE_KEY from the environment, and
// stores the issued credential for later sessions.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/sybl-ml/sybl-go/internal/auth"
	"github.com/sybl-ml/sybl-go/internal/config"
	"github.com/sybl-ml/sybl-go/internal/credstore"
	"github.com/sybl-ml/sybl-go/internal/enroll"
	"github.com/sybl-ml/sybl-go/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "registerctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	email := flag.String("email", "", "email the model is registered with")
	modelName := flag.String("model", "", "name of the model to enroll")
	addr := flag.String("addr", "sybl.tech:7000", "service address")
	storePath := flag.String("store", "", "credential store path (default: XDG data home)")
	flag.Parse()

	config.LoadDotenv()
	logging.ConfigureRuntime()

	in := bufio.NewReader(os.Stdin)
	if *email == "" {
		var err error
		if *email, err = prompt(in, "Enter email: "); err != nil {
			return err
		}
	}
	if *modelName == "" {
		var err error
		if *modelName, err = prompt(in, "Enter name of model: "); err != nil {
			return err
		}
	}
	password, err := readPassword()
	if err != nil {
		return err
	}

	signer, err := auth.SignerFromEnv()
	if err != nil {
		return err
	}

	e, err := enroll.New(enroll.Config{
		Address:   *addr,
		Email:     *email,
		Password:  password,
		ModelName: *modelName,
	}, signer, credstore.NewStore(*storePath))
	if err != nil {
		return err
	}

	cred, err := e.Run(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("model id: %s\naccess token: %s\n", cred.ModelID, cred.AccessToken)
	return nil
}

func prompt(in *bufio.Reader, label string) (string, error) {
	fmt.Print(label)
	line, err := in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func readPassword() (string, error) {
	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

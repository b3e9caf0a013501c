// modelctl runs an enrolled model against the coordination service
// using a trivial baseline predictor. It is mainly a worked example of
// wiring a callback into a session.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sybl-ml/sybl-go/internal/client"
	"github.com/sybl-ml/sybl-go/internal/config"
	"github.com/sybl-ml/sybl-go/internal/credstore"
	"github.com/sybl-ml/sybl-go/internal/logging"
	"github.com/sybl-ml/sybl-go/internal/policy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "modelctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "model.toml", "model config path")
	storePath := flag.String("store", "", "credential store path (default: XDG data home)")
	flag.Parse()

	config.LoadDotenv()
	logging.ConfigureRuntime()

	cfg, err := config.LoadModelConfig(*configPath)
	if err != nil {
		return err
	}

	c := client.New(client.Config{
		Address:            cfg.Addr,
		DeclineBadDatasets: cfg.DeclineBadDatasets,
	})
	c.UsePolicy(policy.New(cfg.PredictionTypes, cfg.TimeoutMinutes))
	if err := c.LoadCredential(credstore.NewStore(*storePath), cfg.Email, cfg.ModelName); err != nil {
		return err
	}
	if err := c.RegisterCallback(baselinePredictor); err != nil {
		return err
	}

	return c.Run(context.Background())
}

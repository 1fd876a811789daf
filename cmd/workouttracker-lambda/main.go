package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/lildude/workouttracker/internal/app"
	"github.com/lildude/workouttracker/internal/config"
	"github.com/lildude/workouttracker/internal/lambdahttp"
	"github.com/lildude/workouttracker/internal/logger"
	"github.com/lildude/workouttracker/internal/secret"
)

func main() {
	ctx := context.Background()
	log := logger.NewLogger(os.Getenv("LOG_LEVEL"))

	resolver, err := secret.New(ctx, os.Getenv("SECRETS_BACKEND"), os.Getenv("AWS_REGION"))
	if err != nil {
		log.WithError(err).Fatal("unable to create secret resolver")
	}
	cfg, err := config.Load(ctx, resolver)
	if err != nil {
		log.WithError(err).Fatal("unable to load configuration")
	}
	if err := cfg.ValidateServer(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	a, err := app.NewServer(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("unable to start")
	}
	lambda.Start(lambdahttp.Handler(a.Router()))
}

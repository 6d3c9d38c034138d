// aurora-propagate is the Lambda function subscribed to the RDS instance
// creation topic. It replaces a new instance's tags with its cluster's tags.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/auroratag/internal/app"
	"github.com/yairfalse/auroratag/internal/config"
	"github.com/yairfalse/auroratag/internal/handler"
)

func main() {
	ctx := context.Background()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger, err := app.NewLogger(os.Stdout, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create logger")
	}

	a, err := app.New(ctx, cfg, logger, app.Options{})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}

	h := handler.NewPropagate(a.Propagator, a.Emitter, logger)
	lambda.Start(app.Flushing(a, h.Handle))
}

// Package secrets resolves credentials that are given as AWS Secrets Manager ARNs
package secrets

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/rs/zerolog/log"
)

// ARNPrefix marks a value to be fetched from Secrets Manager
const ARNPrefix = "arn:aws:secretsmanager:"

type getSecretValueAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Resolver fetches secret values on demand
type Resolver struct {
	client getSecretValueAPI
}

// NewResolver returns a Resolver using awsCfg
func NewResolver(awsCfg aws.Config) *Resolver {
	return &Resolver{client: secretsmanager.NewFromConfig(awsCfg)}
}

// IsARN reports whether value refers to a secret
func IsARN(value string) bool {
	return strings.HasPrefix(value, ARNPrefix)
}

// Resolve returns value unchanged unless it is a secret ARN, in which case
// the secret string is fetched
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsARN(value) {
		return value, nil
	}
	log.Info().Msg("fetching credential from AWS Secrets Manager")
	secret, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(value),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret from Secrets Manager: %w", err)
	}
	if secret.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", value)
	}
	return *secret.SecretString, nil
}

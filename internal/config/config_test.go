package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/providentiaww/govbr-oidc-mock/internal/logger"
)

type fakeSecrets struct {
	out *secretsmanager.GetSecretValueOutput
	err error
	in  *secretsmanager.GetSecretValueInput
}

func (f *fakeSecrets) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.in = in
	return f.out, f.err
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
user:
  subject: "12345678900"
  email: cidadao@gov.br
  name: Cidadão Teste
server:
  read_timeout: 5s
`), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "12345678900", cfg.User.Subject)
	assert.Equal(t, "cidadao@gov.br", cfg.User.Email)
	assert.Equal(t, 5*time.Second, Duration(cfg.Server.ReadTimeout, time.Minute))
	assert.Equal(t, time.Minute, Duration(cfg.Server.WriteTimeout, time.Minute))
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.User.Subject)
}

func TestLoadFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user: [unterminated"), 0o600))
	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, time.Second, Duration("", time.Second))
	assert.Equal(t, time.Second, Duration("garbage", time.Second))
	assert.Equal(t, 3*time.Minute, Duration("3m", time.Second))
}

func TestLoadAWSSecretsIntoEnv_NoSecretID(t *testing.T) {
	t.Setenv("AWS_SECRETS_MANAGER_SECRET_ID", "")
	t.Setenv("AWS_SECRET_ID", "")

	fake := &fakeSecrets{}
	require.NoError(t, loadAWSSecretsIntoEnv(context.Background(), logger.Nop(), fake))
	assert.Nil(t, fake.in, "no lookup without a secret id")
}

func TestLoadAWSSecretsIntoEnv_AppliesValues(t *testing.T) {
	t.Setenv("AWS_SECRETS_MANAGER_SECRET_ID", "govbr/mock")
	t.Setenv("AWS_SECRETS_MANAGER_OVERWRITE", "")
	t.Setenv("CLIENT_ID", "already-set")
	t.Setenv("CLIENT_SECRET", "")

	fake := &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String(`{"CLIENT_ID":"from-aws","CLIENT_SECRET":"s3cr3t"}`),
	}}
	require.NoError(t, loadAWSSecretsIntoEnv(context.Background(), logger.Nop(), fake))

	assert.Equal(t, "govbr/mock", aws.ToString(fake.in.SecretId))
	assert.Equal(t, "AWSCURRENT", aws.ToString(fake.in.VersionStage))
	assert.Equal(t, "already-set", os.Getenv("CLIENT_ID"))
	assert.Equal(t, "s3cr3t", os.Getenv("CLIENT_SECRET"))
}

func TestLoadAWSSecretsIntoEnv_Errors(t *testing.T) {
	t.Setenv("AWS_SECRETS_MANAGER_SECRET_ID", "govbr/mock")

	err := loadAWSSecretsIntoEnv(context.Background(), logger.Nop(), &fakeSecrets{err: errors.New("denied")})
	assert.ErrorContains(t, err, "denied")

	err = loadAWSSecretsIntoEnv(context.Background(), logger.Nop(), &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{}})
	assert.ErrorContains(t, err, "no payload")

	err = loadAWSSecretsIntoEnv(context.Background(), logger.Nop(), &fakeSecrets{out: &secretsmanager.GetSecretValueOutput{
		SecretString: aws.String("not json"),
	}})
	assert.ErrorContains(t, err, "parsing secret")
}

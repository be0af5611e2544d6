package remote

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pushback/internal/config"
	pbfs "pushback/internal/fs"
	"pushback/internal/pushback"
	"pushback/internal/rsync"
)

// Options carries the run-wide settings every target needs.
type Options struct {
	// Multiplex enables ssh ControlMaster connection sharing.
	Multiplex bool
	Rsync     *rsync.Runner
	Logger    pushback.Logger
	// Out receives transfer output from targets that do not run rsync.
	Out    io.Writer
	Getenv func(string) string
}

// NewRemoteFromConfig creates a Remote implementation based on the remote config type.
func NewRemoteFromConfig(ctx context.Context, cfg config.RemoteConfig, opts Options) (pushback.Remote, error) {
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.Rsync == nil {
		opts.Rsync = &rsync.Runner{}
	}

	switch cfg.Type {
	case config.RemoteSSH, "":
		sshOpts := SSHOptions{
			Name:         cfg.Name,
			User:         cfg.User,
			Host:         cfg.Host,
			Port:         cfg.Port,
			Base:         cfg.Base,
			IdentityFile: cfg.IdentityFile,
			Multiplex:    opts.Multiplex,
		}
		var shell Shell
		switch cfg.Transport {
		case config.TransportNative:
			native, err := NewNativeShell(cfg.User, cfg.Host, cfg.Port, cfg.IdentityFile)
			if err != nil {
				return nil, fmt.Errorf("remote %s: %w", cfg.Name, err)
			}
			shell = native
		default:
			shell = &ExecShell{
				User:    cfg.User,
				Host:    cfg.Host,
				Options: rsync.SSHOptions(cfg.Port, opts.Multiplex, cfg.IdentityFile),
			}
		}
		return NewSSHRemote(sshOpts, shell, opts.Rsync, opts.Logger), nil

	case config.RemoteLocal:
		if cfg.Base == "" {
			return nil, fmt.Errorf("local remote %s requires base to be set", cfg.Name)
		}
		base, err := pbfs.ExpandHome(cfg.Base)
		if err != nil {
			return nil, err
		}
		local, err := NewLocalRemote(cfg.Name, base, opts.Rsync)
		if err != nil {
			return nil, err
		}
		return local, nil

	case config.RemoteS3:
		client, err := newS3Client(ctx, cfg, opts.Getenv)
		if err != nil {
			return nil, fmt.Errorf("remote %s: %w", cfg.Name, err)
		}
		return NewS3Remote(S3Options{
			Name:   cfg.Name,
			Bucket: cfg.Bucket,
			Base:   cfg.Base,
			Out:    opts.Out,
			Stats:  opts.Rsync.Stats,
		}, client, manager.NewUploader(client), opts.Logger), nil

	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
}

// newS3Client builds a client from the default AWS credential chain, or from
// PUSHBACK_S3_ACCESS_KEY_ID and PUSHBACK_S3_SECRET_ACCESS_KEY when both are set.
func newS3Client(ctx context.Context, cfg config.RemoteConfig, getenv func(string) string) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	keyID := getenv(config.EnvPrefix + "S3_ACCESS_KEY_ID")
	secret := getenv(config.EnvPrefix + "S3_SECRET_ACCESS_KEY")
	if keyID != "" && secret != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(keyID, secret, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

package dataset

import (
	"context"
	"fmt"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/storage/s3"
)

// OpenSource resolves the configured dataset source. The returned close
// function releases any connection the source holds.
func OpenSource(ctx context.Context, cfg config.Config) (Source, func(), error) {
	noop := func() {}
	switch cfg.Dataset.Source {
	case config.DatasetSourceFile:
		return FileSource{Path: cfg.Dataset.Path}, noop, nil
	case config.DatasetSourceS3:
		store, err := s3.New(ctx, S3Config(cfg.ObjectStore))
		if err != nil {
			return nil, nil, fmt.Errorf("init object store: %w", err)
		}
		return ObjectSource{Store: store, Key: cfg.Dataset.ObjectKey}, noop, nil
	case config.DatasetSourcePostgres, config.DatasetSourceSQLite:
		driver := DriverPostgres
		if cfg.Dataset.Source == config.DatasetSourceSQLite {
			driver = DriverSQLite
		}
		db, err := OpenSQL(ctx, SQLConfig{
			Driver:          driver,
			DSN:             cfg.Dataset.DSN,
			MaxOpenConns:    cfg.Dataset.MaxOpenConns,
			ConnMaxLifetime: cfg.Dataset.ConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		source := SQLSource{DB: db, Driver: driver, Table: cfg.Dataset.Table, Query: cfg.Dataset.Query}
		return source, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported dataset source %q", cfg.Dataset.Source)
	}
}

func S3Config(cfg config.ObjectStoreConfig) s3.Config {
	return s3.Config{
		Endpoint:         cfg.Endpoint,
		Region:           cfg.Region,
		Bucket:           cfg.Bucket,
		AccessKeyID:      cfg.AccessKeyID,
		SecretAccessKey:  cfg.SecretAccessKey,
		UseSSL:           cfg.UseSSL,
		Prefix:           cfg.Prefix,
		AutoCreateBucket: cfg.AutoCreateBucket,
	}
}

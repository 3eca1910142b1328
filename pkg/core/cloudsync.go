package core

import (
	"context"
	"net/http"

	"github.com/robcohen/peervault/pkg/cloudsync"
	"github.com/robcohen/peervault/pkg/config"
	"github.com/robcohen/peervault/pkg/crypto"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// CloudSyncConfig is re-exported so a host only imports pkg/core for
// wiring; it is structurally pkg/config.CloudConfig.
type CloudSyncConfig = config.CloudConfig

// EnableCloudSync wires the optional object-storage sync layer (spec
// §4.12) against cfg, using the vault's current encryption suite. The
// vault must already have a key (CreateVaultKey/ImportVaultKey/Unlock)
// since every pushed delta is encrypted before it leaves the device.
func (v *Vault) EnableCloudSync(cfg CloudSyncConfig) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.suite == nil {
		return vaulterr.New(vaulterr.CodeCryptoKeyMissing, "cloud sync requires a vault encryption key")
	}

	client := cloudsync.NewClient(cloudsync.ClientConfig{
		Endpoint: cfg.Endpoint,
		Bucket:   cfg.Bucket,
		Creds: cloudsync.Credentials{
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Region:    cfg.Region,
		},
	}, http.DefaultClient)

	fingerprint := ""
	if v.rawKey != nil {
		fingerprint = crypto.Fingerprint(v.rawKey)
	}
	v.cloud = cloudsync.New(client, "peervault", v.suite, fingerprint, v.doc, v.raw)
	return nil
}

// SyncCloud pushes local changes then pulls remote ones. Returns whether
// either direction transferred anything.
func (v *Vault) SyncCloud(ctx context.Context) (pushed, pulled bool, err error) {
	v.mu.Lock()
	layer := v.cloud
	v.mu.Unlock()
	if layer == nil {
		return false, false, vaulterr.New(vaulterr.CodeCryptoKeyMissing, "cloud sync not enabled: call EnableCloudSync first")
	}
	pushed, err = layer.Push(ctx)
	if err != nil {
		return pushed, false, err
	}
	pulled, err = layer.Pull(ctx)
	return pushed, pulled, err
}

package core

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/robcohen/peervault/pkg/blobstore"
	"github.com/robcohen/peervault/pkg/cloudsync"
	"github.com/robcohen/peervault/pkg/crypto"
	"github.com/robcohen/peervault/pkg/document"
	"github.com/robcohen/peervault/pkg/encstorage"
	"github.com/robcohen/peervault/pkg/events"
	"github.com/robcohen/peervault/pkg/gc"
	"github.com/robcohen/peervault/pkg/log"
	"github.com/robcohen/peervault/pkg/migrate"
	"github.com/robcohen/peervault/pkg/peer"
	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/types"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// vaultCryptoKey is where Vault persists the scrypt salt, algorithm name,
// and key fingerprint needed to re-derive the vault key from a password on
// a later Open. It always stays in plaintext: it's what Unlock reads before
// any suite exists to decrypt with. The key itself is never written to
// storage.
const vaultCryptoKey = "vault-crypto"

type cryptoRecord struct {
	Algorithm      string `json:"algorithm"`
	Salt           []byte `json:"salt"`
	ScryptCost     int    `json:"scryptCost"`
	KeyFingerprint string `json:"keyFingerprint"`
}

func encodeCryptoRecord(rec cryptoRecord) ([]byte, error) { return json.Marshal(rec) }

func decodeCryptoRecord(raw []byte) (*cryptoRecord, error) {
	var rec cryptoRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorageCorrupt, err)
	}
	return &rec, nil
}

// Options configures Vault.Open.
type Options struct {
	DataDir   string
	NodeID    string
	Hostname  string
	Nickname  string
	Transport peer.Transport

	GC     gc.Config
	Crypto CryptoOptions

	Migrations []migrate.Migration
}

// CryptoOptions selects the AEAD algorithm and KDF cost a vault's
// CreateVaultKey/ImportVaultKey use.
type CryptoOptions struct {
	Algorithm  string
	ScryptCost int
}

// Vault is the single in-process facade a host embeds: file events, peer
// pairing, GC and key management are methods here, wiring pkg/document,
// pkg/blobstore, pkg/peer, pkg/gc, and pkg/crypto together behind one lock
// per vault instance. There is no Sync method: peer sync runs in the
// sessions that Start and AddPeer bring up.
type Vault struct {
	mu sync.Mutex

	raw       *storage.BoltAdapter
	store     *storage.Swappable
	nodeID    string
	cryptoCfg CryptoOptions

	suite  crypto.Suite
	rawKey []byte // held only in memory, for ExportRecoveryPhrase; never persisted

	doc    *document.Manager
	blobs  *blobstore.Store
	peers  *peer.Manager
	gcColl *gc.Collector
	broker *events.Broker
	cloud  *cloudsync.Layer

	logger zerolog.Logger
}

// Open opens (or creates) a vault rooted at opts.DataDir, running any
// pending schema migrations before wiring the live components. If the
// vault was previously encrypted, call Unlock before using it.
func Open(ctx context.Context, opts Options) (*Vault, error) {
	raw, err := storage.NewBoltAdapter(opts.DataDir)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeStorageDiskFull, err)
	}

	logger := log.WithComponent("core")

	if len(opts.Migrations) > 0 {
		runner := migrate.NewRunner(raw, logger, opts.Migrations)
		target := opts.Migrations[len(opts.Migrations)-1].ToVersion
		if _, err := runner.Run(ctx, target); err != nil {
			_ = raw.Close()
			return nil, err
		}
	}

	v := &Vault{
		raw:       raw,
		store:     storage.NewSwappable(raw),
		nodeID:    opts.NodeID,
		cryptoCfg: opts.Crypto,
		broker:    events.NewBroker(),
		logger:    logger,
	}

	v.doc = document.New(v.store, opts.NodeID)
	if err := v.doc.Initialize(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	v.blobs = blobstore.New(v.store, blobstore.DefaultMaxBlobSize)
	v.peers = peer.New(v.store, opts.Transport, v.doc, v.blobs, v.broker, opts.NodeID)
	v.gcColl = gc.New(opts.GC, v.store, docCompactor{doc: v.doc}, v.blobs, v.peers, logger)

	v.broker.Start()
	v.logger.Info().Str("vault_id", v.doc.VaultID()).Str("node_id", opts.NodeID).Msg("vault opened")
	return v, nil
}

// Close stops every background loop and closes the underlying storage.
func (v *Vault) Close() error {
	v.peers.Stop()
	v.broker.Stop()
	return v.raw.Close()
}

// Events returns a channel of host-visible events. Callers must eventually
// call UnsubscribeEvents(ch) to release it.
func (v *Vault) Events() events.Subscriber {
	return v.broker.Subscribe()
}

// UnsubscribeEvents releases a channel returned by Events.
func (v *Vault) UnsubscribeEvents(sub events.Subscriber) {
	v.broker.Unsubscribe(sub)
}

// Start begins accepting inbound peer connections and reconnecting to every
// previously known peer.
func (v *Vault) Start(ctx context.Context) error {
	return v.peers.Start(ctx)
}

// VaultID returns the CRDT document's vault identity.
func (v *Vault) VaultID() string {
	return v.doc.VaultID()
}

// --- Local file mutation surface (spec §6) ---

func (v *Vault) HandleFileCreate(ctx context.Context, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc.HandleFileCreate(ctx, path)
}

func (v *Vault) HandleFileModify(ctx context.Context, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc.HandleFileModify(ctx, path)
}

func (v *Vault) HandleFileDelete(ctx context.Context, path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc.HandleFileDelete(ctx, path)
}

func (v *Vault) HandleFileRename(ctx context.Context, oldPath, newPath string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc.HandleFileRename(ctx, oldPath, newPath)
}

func (v *Vault) SetTextContent(ctx context.Context, path, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.doc.SetTextContent(ctx, path, text)
}

// PutBlob stores content in the blob store and points path at its hash, the
// two-step operation a host does for any non-text file write.
func (v *Vault) PutBlob(ctx context.Context, path string, content []byte, mimeType string) (string, error) {
	hash, err := v.blobs.Add(ctx, content, mimeType)
	if err != nil {
		return "", err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.doc.SetBlobHash(ctx, path, hash); err != nil {
		return "", err
	}
	return hash, nil
}

// GetBlob resolves path to its content, fetching from the blob store.
func (v *Vault) GetBlob(ctx context.Context, path string) ([]byte, error) {
	hash, err := v.doc.GetBlobHash(path)
	if err != nil {
		return nil, err
	}
	return v.blobs.Get(ctx, hash)
}

func (v *Vault) ListAllPaths() []string {
	return v.doc.ListAllPaths()
}

func (v *Vault) GetContent(path string) (string, error) {
	return v.doc.GetContent(path)
}

// --- Peer management (spec §6) ---

func (v *Vault) ListPeers(ctx context.Context) ([]types.PeerRecord, error) {
	return v.peers.ListPeers(ctx)
}

func (v *Vault) GenerateInvite(ctx context.Context) (string, error) {
	return v.peers.GenerateInvite(ctx)
}

func (v *Vault) AddPeer(ctx context.Context, ticket string) error {
	return v.peers.AddPeer(ctx, ticket)
}

func (v *Vault) RemovePeer(ctx context.Context, nodeID string) error {
	return v.peers.RemovePeer(ctx, nodeID)
}

// --- Garbage collection (spec §6) ---

func (v *Vault) RunGC(ctx context.Context, force bool) (*gc.Result, error) {
	return v.gcColl.MaybeRun(ctx, force)
}

// --- Key management (spec §6) ---

// CreateVaultKey derives a fresh encryption key from password, re-encrypts
// every existing key in storage under it, and persists the key's salt and
// fingerprint so a later Unlock can re-derive it. It is an error to call on
// a vault that already has a key.
func (v *Vault) CreateVaultKey(ctx context.Context, password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.raw.Read(ctx, vaultCryptoKey); err == nil {
		return vaulterr.New(vaulterr.CodeCryptoKeyMissing, "vault already has an encryption key")
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	key, err := crypto.DeriveKey(password, salt, v.cryptoCfg.ScryptCost)
	if err != nil {
		return err
	}
	return v.adoptKey(ctx, key, salt)
}

// ImportVaultKey installs a key received from a peer (via
// events.VaultKeyReceived) or decoded from a recovery phrase, re-encrypting
// existing storage under it exactly like CreateVaultKey. The key isn't
// password-derived: a fresh salt is recorded in the crypto record, but it
// plays no part in the key or its fingerprint (crypto.Fingerprint hashes
// the key alone), so Unlock isn't meaningful for an imported key (the peer that generated it
// redistributes it the same way again if this device needs it back).
func (v *Vault) ImportVaultKey(ctx context.Context, key []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	salt, err := crypto.NewSalt()
	if err != nil {
		return err
	}
	return v.adoptKey(ctx, key, salt)
}

// ImportRecoveryPhrase decodes a 24-word recovery phrase and installs it as
// the vault key.
func (v *Vault) ImportRecoveryPhrase(ctx context.Context, words []string) error {
	key, err := crypto.DecodeRecoveryPhrase(words)
	if err != nil {
		return err
	}
	return v.ImportVaultKey(ctx, key)
}

// ExportRecoveryPhrase encodes the vault's current key as a 24-word phrase
// the host can show the user once, for offline backup.
func (v *Vault) ExportRecoveryPhrase() ([]string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rawKey == nil {
		return nil, vaulterr.New(vaulterr.CodeCryptoKeyMissing, "vault has no encryption key")
	}
	return crypto.EncodeRecoveryPhrase(v.rawKey)
}

// Unlock re-derives the vault key from password using the persisted salt
// and cost, and wraps storage with it. Call after Open on a vault that
// already has a cryptoRecord from a previous CreateVaultKey.
func (v *Vault) Unlock(ctx context.Context, password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	rec, err := v.readCryptoRecord(ctx)
	if err != nil {
		return err
	}
	if rec == nil {
		return vaulterr.New(vaulterr.CodeCryptoKeyMissing, "vault has no encryption key to unlock")
	}
	key, err := crypto.DeriveKey(password, rec.Salt, rec.ScryptCost)
	if err != nil {
		return err
	}
	if crypto.Fingerprint(key) != rec.KeyFingerprint {
		return vaulterr.New(vaulterr.CodeCryptoInvalidKey, "incorrect password")
	}
	suite, err := crypto.NewSuite(rec.Algorithm, key)
	if err != nil {
		return err
	}
	wrapper, err := encstorage.New(v.raw, suite)
	if err != nil {
		return err
	}
	v.suite = suite
	v.rawKey = key
	v.store.Swap(wrapper)
	return nil
}

func (v *Vault) adoptKey(ctx context.Context, key []byte, salt []byte) error {
	suite, err := crypto.NewSuite(v.cryptoCfg.Algorithm, key)
	if err != nil {
		return err
	}

	wrapper, err := encstorage.New(v.raw, suite)
	if err != nil {
		return err
	}
	if err := wrapper.ReencryptAll(ctx, "", nil); err != nil {
		return err
	}

	rec := cryptoRecord{
		Algorithm:      v.cryptoCfg.Algorithm,
		Salt:           salt,
		ScryptCost:     v.cryptoCfg.ScryptCost,
		KeyFingerprint: crypto.Fingerprint(key),
	}
	raw, err := encodeCryptoRecord(rec)
	if err != nil {
		return err
	}
	if err := v.raw.Write(ctx, vaultCryptoKey, raw); err != nil {
		return err
	}

	v.suite = suite
	v.rawKey = key
	v.store.Swap(wrapper)
	return nil
}

func (v *Vault) readCryptoRecord(ctx context.Context) (*cryptoRecord, error) {
	raw, err := v.raw.Read(ctx, vaultCryptoKey)
	if vaulterr.HasCode(err, vaulterr.CodeStorageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeCryptoRecord(raw)
}

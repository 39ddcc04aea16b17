package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/common"
	"github.com/vultisig/octra-wallet/internal/types"
	"github.com/vultisig/octra-wallet/storage"
)

// BackupService mirrors encrypted wallet entries to block storage as xz blobs.
type BackupService struct {
	store  storage.Store
	blobs  storage.BlobStorage
	logger *logrus.Logger
}

// NewBackupService accepts a nil blobs, every operation then reports backups as disabled.
func NewBackupService(store storage.Store, blobs storage.BlobStorage) *BackupService {
	return &BackupService{
		store:  store,
		blobs:  blobs,
		logger: logrus.WithField("service", "backup").Logger,
	}
}

func (b *BackupService) Enabled() bool {
	return b.blobs != nil
}

func backupFileName(address string) string {
	return address + ".bak"
}

func (b *BackupService) disabled() error {
	return types.NewValidationError(types.ErrBackupDisabled, "block storage is not configured")
}

func (b *BackupService) Upload(ctx context.Context, address string) error {
	if !b.Enabled() {
		return b.disabled()
	}
	var encrypted []types.EncryptedWallet
	if _, err := storage.GetJSON(ctx, b.store, storage.KeyEncryptedWallets, &encrypted); err != nil {
		return err
	}
	idx := findEncrypted(encrypted, address)
	if idx < 0 {
		return types.NewValidationError(types.ErrBackupNotFound, fmt.Sprintf("no encrypted copy of %s, set a password first", address))
	}
	raw, err := json.Marshal(encrypted[idx])
	if err != nil {
		return fmt.Errorf("fail to serialize backup, err: %w", err)
	}
	compressed, err := common.CompressData(raw)
	if err != nil {
		return err
	}
	return b.blobs.UploadFile(ctx, compressed, backupFileName(address))
}

// Restore downloads the backup of address and upserts it into the encrypted wallet list.
func (b *BackupService) Restore(ctx context.Context, address string) (types.EncryptedWallet, error) {
	if !b.Enabled() {
		return types.EncryptedWallet{}, b.disabled()
	}
	name := backupFileName(address)
	exists, err := b.blobs.FileExist(ctx, name)
	if err != nil {
		return types.EncryptedWallet{}, fmt.Errorf("fail to check backup of %s, err: %w", address, err)
	}
	if !exists {
		return types.EncryptedWallet{}, types.NewValidationError(types.ErrBackupNotFound, fmt.Sprintf("no backup for %s", address))
	}
	blob, err := b.blobs.GetFile(ctx, name)
	// deleted between the check and the read
	if errors.Is(err, storage.ErrBlobNotFound) {
		return types.EncryptedWallet{}, types.NewValidationError(types.ErrBackupNotFound, fmt.Sprintf("no backup for %s", address))
	}
	if err != nil {
		return types.EncryptedWallet{}, err
	}
	raw, err := common.DecompressData(blob)
	if err != nil {
		return types.EncryptedWallet{}, err
	}
	var ew types.EncryptedWallet
	if err := json.Unmarshal(raw, &ew); err != nil {
		return types.EncryptedWallet{}, fmt.Errorf("fail to deserialize backup, err: %w", err)
	}
	if ew.Address != address {
		return types.EncryptedWallet{}, fmt.Errorf("backup belongs to %s, not %s", ew.Address, address)
	}

	var encrypted []types.EncryptedWallet
	if _, err := storage.GetJSON(ctx, b.store, storage.KeyEncryptedWallets, &encrypted); err != nil {
		return types.EncryptedWallet{}, err
	}
	if idx := findEncrypted(encrypted, address); idx >= 0 {
		encrypted[idx] = ew
	} else {
		encrypted = append(encrypted, ew)
	}
	if err := storage.SetJSON(ctx, b.store, storage.KeyEncryptedWallets, encrypted); err != nil {
		return types.EncryptedWallet{}, err
	}
	b.logger.WithField("address", address).Info("backup restored")
	return ew, nil
}

func (b *BackupService) Delete(ctx context.Context, address string) error {
	if !b.Enabled() {
		return b.disabled()
	}
	name := backupFileName(address)
	exists, err := b.blobs.FileExist(ctx, name)
	if err != nil || !exists {
		return err
	}
	return b.blobs.DeleteFile(ctx, name)
}

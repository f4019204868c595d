package persistence

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rawblock/tradeloop-engine/pkg/models"
)

// magic identifies a trade loop engine snapshot file; schemaVersion guards
// against reading a file written by an incompatible layout.
const (
	magic         uint32 = 0x54524445 // "TRDE"
	schemaVersion uint32 = 1
)

// WriteSnapshot and ReadSnapshot are stdlib-only by design: this is the
// degraded-mode path for environments with no database, so it must not add
// a new third-party dependency of its own (see DESIGN.md).

// WriteSnapshot serializes a tenant's wallets and items to path using a
// length-prefixed binary framing: a header (magic, schema version,
// length-prefixed tenant id), then a wallet count and one variable-length
// record per wallet, then an item count and one record per item.
func WriteSnapshot(path string, tenantID string, wallets map[models.WalletID]*models.Wallet, items map[models.ItemID]*models.Item) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := binary.Write(w, binary.BigEndian, magic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, schemaVersion); err != nil {
		return err
	}
	if err := writeString(w, tenantID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(wallets))); err != nil {
		return err
	}
	for _, wallet := range wallets {
		if err := writeWallet(w, wallet); err != nil {
			return err
		}
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(items))); err != nil {
		return err
	}
	for _, item := range items {
		if err := writeItem(w, item); err != nil {
			return err
		}
	}
	return w.Flush()
}

// Snapshot is the decoded result of ReadSnapshot.
type Snapshot struct {
	TenantID string
	Wallets  map[models.WalletID]*models.Wallet
	Items    map[models.ItemID]*models.Item
}

// ReadSnapshot deserializes a file written by WriteSnapshot, failing with
// models.ErrSnapshotInconsistency if the magic or schema version doesn't
// match.
func ReadSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var gotMagic, gotVersion uint32
	if err := binary.Read(r, binary.BigEndian, &gotMagic); err != nil {
		return nil, fmt.Errorf("failed to read snapshot magic: %w", err)
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("%w: bad magic %x", models.ErrSnapshotInconsistency, gotMagic)
	}
	if err := binary.Read(r, binary.BigEndian, &gotVersion); err != nil {
		return nil, fmt.Errorf("failed to read snapshot schema version: %w", err)
	}
	if gotVersion != schemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", models.ErrSnapshotInconsistency, gotVersion)
	}

	tenantID, err := readString(r)
	if err != nil {
		return nil, err
	}

	var walletCount uint32
	if err := binary.Read(r, binary.BigEndian, &walletCount); err != nil {
		return nil, err
	}
	wallets := make(map[models.WalletID]*models.Wallet, walletCount)
	for i := uint32(0); i < walletCount; i++ {
		wallet, err := readWallet(r)
		if err != nil {
			return nil, err
		}
		wallets[wallet.ID] = wallet
	}

	var itemCount uint32
	if err := binary.Read(r, binary.BigEndian, &itemCount); err != nil {
		return nil, err
	}
	items := make(map[models.ItemID]*models.Item, itemCount)
	for i := uint32(0); i < itemCount; i++ {
		item, err := readItem(r)
		if err != nil {
			return nil, err
		}
		items[item.ID] = item
	}

	return &Snapshot{TenantID: tenantID, Wallets: wallets, Items: items}, nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeStringSet[K ~string](w io.Writer, set map[K]struct{}) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(set))); err != nil {
		return err
	}
	for k := range set {
		if err := writeString(w, string(k)); err != nil {
			return err
		}
	}
	return nil
}

func readStringSet[K ~string](r io.Reader) (map[K]struct{}, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	set := make(map[K]struct{}, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		set[K(s)] = struct{}{}
	}
	return set, nil
}

func writeWallet(w io.Writer, wallet *models.Wallet) error {
	if err := writeString(w, string(wallet.ID)); err != nil {
		return err
	}
	if err := writeStringSet[models.ItemID](w, wallet.Owned); err != nil {
		return err
	}
	if err := writeStringSet[models.ItemID](w, wallet.Wanted); err != nil {
		return err
	}
	if err := writeStringSet[models.ItemID](w, wallet.RejectedItems); err != nil {
		return err
	}
	if err := writeStringSet[models.WalletID](w, wallet.RejectedPeers); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, wallet.LastUpdated.UnixNano())
}

func readWallet(r io.Reader) (*models.Wallet, error) {
	id, err := readString(r)
	if err != nil {
		return nil, err
	}
	owned, err := readStringSet[models.ItemID](r)
	if err != nil {
		return nil, err
	}
	wanted, err := readStringSet[models.ItemID](r)
	if err != nil {
		return nil, err
	}
	rejectedItems, err := readStringSet[models.ItemID](r)
	if err != nil {
		return nil, err
	}
	rejectedPeers, err := readStringSet[models.WalletID](r)
	if err != nil {
		return nil, err
	}
	var nanos int64
	if err := binary.Read(r, binary.BigEndian, &nanos); err != nil {
		return nil, err
	}
	return &models.Wallet{
		ID:            models.WalletID(id),
		Owned:         owned,
		Wanted:        wanted,
		RejectedItems: rejectedItems,
		RejectedPeers: rejectedPeers,
		LastUpdated:   time.Unix(0, nanos),
	}, nil
}

func writeItem(w io.Writer, item *models.Item) error {
	if err := writeString(w, string(item.ID)); err != nil {
		return err
	}
	if err := writeString(w, string(item.Owner)); err != nil {
		return err
	}
	if err := writeString(w, string(item.Collection)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, item.EstimatedValue); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, item.ValueKnown); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, int32(item.Provenance))
}

func readItem(r io.Reader) (*models.Item, error) {
	id, err := readString(r)
	if err != nil {
		return nil, err
	}
	owner, err := readString(r)
	if err != nil {
		return nil, err
	}
	collection, err := readString(r)
	if err != nil {
		return nil, err
	}
	var value float64
	if err := binary.Read(r, binary.BigEndian, &value); err != nil {
		return nil, err
	}
	var known bool
	if err := binary.Read(r, binary.BigEndian, &known); err != nil {
		return nil, err
	}
	var provenance int32
	if err := binary.Read(r, binary.BigEndian, &provenance); err != nil {
		return nil, err
	}
	return &models.Item{
		ID:             models.ItemID(id),
		Owner:          models.WalletID(owner),
		Collection:     models.CollectionID(collection),
		EstimatedValue: value,
		ValueKnown:     known,
		Provenance:     models.ValueProvenance(provenance),
	}, nil
}

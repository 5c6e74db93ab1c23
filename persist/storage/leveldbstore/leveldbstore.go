// Package leveldbstore is the production BlockStorage implementation: block
// bytes, block-index records, the height-to-hash index, transaction
// descriptors and the disk-pool all live in one github.com/syndtr/goleveldb
// database, written through a single leveldb.Batch per commit so every write
// inside a storage.Batch lands atomically (spec §5's transactional-boundary
// contract). Grounded on copernicus's persist/db.DBWrapper/BatchWrapper
// (key-prefix namespacing, one leveldb.Batch per commit) and, for the lookup
// side, on the pack's use of github.com/hashicorp/golang-lru to keep hot
// BlockIndex entries off the disk path — load-bearing for
// InventoryProcessor.AlreadyHas, which spec §4.7 requires to be cheap per
// inventory announcement.
package leveldbstore

import (
	"bytes"
	"encoding/binary"
	"io"

	lru "github.com/hashicorp/golang-lru"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/ledgerforge/chaincore/model/block"
	"github.com/ledgerforge/chaincore/model/blockindex"
	"github.com/ledgerforge/chaincore/model/outpoint"
	"github.com/ledgerforge/chaincore/model/tx"
	"github.com/ledgerforge/chaincore/persist/storage"
	"github.com/ledgerforge/chaincore/util"
)

// Key-space prefixes, one byte each, mirroring the teacher's
// db.DbBlockIndex / db.DbBestBlock single-byte namespace bytes.
const (
	prefixBlockBytes byte = 'k'
	prefixBlockIndex byte = 'i'
	prefixHeightHash byte = 'h'
	prefixBestBlock  byte = 'B'
	prefixTxDesc     byte = 'd'
	prefixPoolTx     byte = 'p'
	prefixPoolOrder  byte = 'o' // sequence(8 BE) -> hash, for ordered pool scans
)

const indexCacheSize = 4096

// Store is a goleveldb-backed BlockStorage.
type Store struct {
	db         *leveldb.DB
	indexCache *lru.Cache // util.Hash -> *blockindex.BlockIndex
}

// Open opens (creating if absent) a LevelDB database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	cache, err := lru.New(indexCacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, indexCache: cache}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// --- key helpers ---

func keyWithHash(prefix byte, hash util.Hash) []byte {
	k := make([]byte, 1+util.HashSize)
	k[0] = prefix
	copy(k[1:], hash[:])
	return k
}

func keyWithHeight(height int32) []byte {
	k := make([]byte, 5)
	k[0] = prefixHeightHash
	binary.BigEndian.PutUint32(k[1:], uint32(height))
	return k
}

func keyWithSequence(seq uint64) []byte {
	k := make([]byte, 9)
	k[0] = prefixPoolOrder
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

// --- serialization of BlockIndex ---
//
// Only the header, height, chain work and the small bookkeeping fields are
// persisted; Prev and Skip are reconstructed lazily on load by resolveLinks,
// the same way a node rebuilds its in-memory block tree from an on-disk
// block-index table at startup.

func serializeIndex(idx *blockindex.BlockIndex) []byte {
	var buf bytes.Buffer
	_ = idx.Header.Serialize(&buf)
	_ = util.WriteInt64(&buf, int64(idx.Height))
	workBytes := idx.ChainWork.Bytes()
	_ = util.WriteVarBytes(&buf, workBytes)
	if idx.NextBlockHash != nil {
		_ = buf.WriteByte(1)
		_ = idx.NextBlockHash.Serialize(&buf)
	} else {
		_ = buf.WriteByte(0)
	}
	_ = util.WriteInt64(&buf, int64(idx.TransactionCount))
	_ = util.WriteInt64(&buf, int64(idx.BlockSize))
	_ = util.WriteVarBytes(&buf, idx.BlockLocatorOnDisk)
	_ = util.WriteInt64(&buf, idx.SequenceID)
	return buf.Bytes()
}

func deserializeIndex(hash util.Hash, data []byte) (*blockindex.BlockIndex, error) {
	r := bytes.NewReader(data)
	header, err := block.DeserializeHeader(r)
	if err != nil {
		return nil, err
	}
	height, err := util.ReadInt64(r)
	if err != nil {
		return nil, err
	}
	workBytes, err := util.ReadVarBytes(r, 64)
	if err != nil {
		return nil, err
	}
	var hasNext [1]byte
	if _, err := io.ReadFull(r, hasNext[:]); err != nil {
		return nil, err
	}
	var next *util.Hash
	if hasNext[0] == 1 {
		h, err := util.DeserializeHash(r)
		if err != nil {
			return nil, err
		}
		next = &h
	}
	txCount, err := util.ReadInt64(r)
	if err != nil {
		return nil, err
	}
	blockSize, err := util.ReadInt64(r)
	if err != nil {
		return nil, err
	}
	locator, err := util.ReadVarBytes(r, 1<<20)
	if err != nil {
		return nil, err
	}
	seqID, err := util.ReadInt64(r)
	if err != nil {
		return nil, err
	}

	idx := &blockindex.BlockIndex{
		Hash:               hash,
		Header:             *header,
		Height:             int32(height),
		NextBlockHash:      next,
		TransactionCount:   int(txCount),
		BlockSize:          int(blockSize),
		BlockLocatorOnDisk: locator,
		SequenceID:         seqID,
	}
	idx.ChainWork.SetBytes(workBytes)
	return idx, nil
}

// resolveLinks fills in idx.Prev from the cache/DB and rebuilds the skip
// pointer, the way an in-memory block tree is reconstructed after restart.
// Memoized via indexCache so repeated lookups do not re-walk the chain.
func (s *Store) resolveLinks(idx *blockindex.BlockIndex) {
	if idx.Prev != nil || idx.IsGenesis() {
		return
	}
	if prev, ok := s.GetBlockInfo(idx.Header.HashPrevBlock); ok {
		idx.Prev = prev
		idx.BuildSkip()
	}
}

func (s *Store) cacheAndLink(idx *blockindex.BlockIndex) *blockindex.BlockIndex {
	if cached, ok := s.indexCache.Get(idx.GetBlockHash()); ok {
		return cached.(*blockindex.BlockIndex)
	}
	s.resolveLinks(idx)
	s.indexCache.Add(idx.GetBlockHash(), idx)
	return idx
}

// --- serialization of TransactionDescriptor ---

func serializeDescriptor(desc *storage.TransactionDescriptor) []byte {
	var buf bytes.Buffer
	_ = buf.WriteByte(byte(desc.Location))
	_ = desc.BlockHash.Serialize(&buf)
	_ = util.WriteInt64(&buf, int64(desc.TxIndex))
	_ = util.WriteUint64(&buf, desc.PoolSequence)
	_ = util.WriteVarInt(&buf, uint64(len(desc.Spends)))
	for _, sp := range desc.Spends {
		if sp.Spent {
			_ = buf.WriteByte(1)
		} else {
			_ = buf.WriteByte(0)
		}
		_ = sp.By.Serialize(&buf)
	}
	return buf.Bytes()
}

func deserializeDescriptor(data []byte) (*storage.TransactionDescriptor, error) {
	r := bytes.NewReader(data)
	var locByte [1]byte
	if _, err := io.ReadFull(r, locByte[:]); err != nil {
		return nil, err
	}
	blockHash, err := util.DeserializeHash(r)
	if err != nil {
		return nil, err
	}
	txIndex, err := util.ReadInt64(r)
	if err != nil {
		return nil, err
	}
	seq, err := util.ReadUint64(r)
	if err != nil {
		return nil, err
	}
	spendCount, err := util.ReadVarInt(r)
	if err != nil {
		return nil, err
	}
	spends := make([]storage.OutputSpend, spendCount)
	for i := range spends {
		var spentByte [1]byte
		if _, err := io.ReadFull(r, spentByte[:]); err != nil {
			return nil, err
		}
		op, err := outpoint.Deserialize(r)
		if err != nil {
			return nil, err
		}
		spends[i] = storage.OutputSpend{Spent: spentByte[0] == 1, By: op}
	}
	return &storage.TransactionDescriptor{
		Location:     storage.Location(locByte[0]),
		BlockHash:    blockHash,
		TxIndex:      int(txIndex),
		PoolSequence: seq,
		Spends:       spends,
	}, nil
}

// --- Batch ---

// batch accumulates writes into a leveldb.Batch so Commit applies them in a
// single atomic WriteBatch call.
type batch struct {
	store *Store
	wb    *leveldb.Batch
	// deferred closures handle work that needs to read-modify-write (the
	// pool order index, next-block-hash patching) against the live DB,
	// applied into the same leveldb.Batch just before Commit.
	deferred []func(*Store, *leveldb.Batch) error
}

func (s *Store) NewBatch() storage.Batch {
	return &batch{store: s, wb: new(leveldb.Batch)}
}

func (b *batch) PutBlock(index *blockindex.BlockIndex, blk *block.Block) {
	hash := index.GetBlockHash()
	var buf bytes.Buffer
	_ = blk.Serialize(&buf)
	b.wb.Put(keyWithHash(prefixBlockBytes, hash), buf.Bytes())
	b.wb.Put(keyWithHash(prefixBlockIndex, hash), serializeIndex(index))
	b.deferred = append(b.deferred, func(s *Store, wb *leveldb.Batch) error {
		s.indexCache.Add(hash, index)
		return nil
	})
}

func (b *batch) PutBestBlockHash(hash util.Hash) {
	var buf bytes.Buffer
	_ = hash.Serialize(&buf)
	b.wb.Put([]byte{prefixBestBlock}, buf.Bytes())
}

func (b *batch) PutBlockHashByHeight(height int32, hash util.Hash) {
	var buf bytes.Buffer
	_ = hash.Serialize(&buf)
	b.wb.Put(keyWithHeight(height), buf.Bytes())
}

func (b *batch) DeleteBlockHashByHeight(height int32) {
	b.wb.Delete(keyWithHeight(height))
}

func (b *batch) UpdateNextBlockHash(hash util.Hash, next *util.Hash) {
	b.deferred = append(b.deferred, func(s *Store, wb *leveldb.Batch) error {
		idx, ok := s.GetBlockInfo(hash)
		if !ok {
			return nil
		}
		idx.NextBlockHash = next
		s.indexCache.Add(hash, idx)
		wb.Put(keyWithHash(prefixBlockIndex, hash), serializeIndex(idx))
		return nil
	})
}

func (b *batch) PutTransactionDescriptor(hash util.Hash, desc *storage.TransactionDescriptor) {
	b.wb.Put(keyWithHash(prefixTxDesc, hash), serializeDescriptor(desc))
}

func (b *batch) DeleteTransactionDescriptor(hash util.Hash) {
	b.wb.Delete(keyWithHash(prefixTxDesc, hash))
}

func (b *batch) PutTransactionToPool(hash util.Hash, t *tx.Transaction, sequence uint64) {
	var buf bytes.Buffer
	_ = t.Serialize(&buf)
	b.wb.Put(keyWithHash(prefixPoolTx, hash), buf.Bytes())
	b.wb.Put(keyWithSequence(sequence), hash[:])
}

func (b *batch) DeleteTransactionFromPool(hash util.Hash) {
	b.wb.Delete(keyWithHash(prefixPoolTx, hash))
	b.deferred = append(b.deferred, func(s *Store, wb *leveldb.Batch) error {
		desc, ok := s.GetTransactionDescriptor(hash)
		if ok && desc.Location == storage.LocationPool {
			wb.Delete(keyWithSequence(desc.PoolSequence))
		}
		return nil
	})
}

func (b *batch) Commit() error {
	for _, fn := range b.deferred {
		if err := fn(b.store, b.wb); err != nil {
			return err
		}
	}
	return b.store.db.Write(b.wb, nil)
}

// --- BlockStorage reads ---

func (s *Store) HasBlock(hash util.Hash) bool {
	ok, _ := s.db.Has(keyWithHash(prefixBlockIndex, hash), nil)
	return ok
}

func (s *Store) GetBlockInfo(hash util.Hash) (*blockindex.BlockIndex, bool) {
	if cached, ok := s.indexCache.Get(hash); ok {
		return cached.(*blockindex.BlockIndex), true
	}
	data, err := s.db.Get(keyWithHash(prefixBlockIndex, hash), nil)
	if err != nil {
		return nil, false
	}
	idx, err := deserializeIndex(hash, data)
	if err != nil {
		return nil, false
	}
	return s.cacheAndLink(idx), true
}

func (s *Store) GetBlockHeader(hash util.Hash) (*block.BlockHeader, bool) {
	idx, ok := s.GetBlockInfo(hash)
	if !ok {
		return nil, false
	}
	return &idx.Header, true
}

func (s *Store) GetBlock(hash util.Hash) (*blockindex.BlockIndex, *block.Block, bool) {
	idx, ok := s.GetBlockInfo(hash)
	if !ok {
		return nil, nil, false
	}
	data, err := s.db.Get(keyWithHash(prefixBlockBytes, hash), nil)
	if err != nil {
		return idx, nil, false
	}
	blk, err := block.Deserialize(bytes.NewReader(data))
	if err != nil {
		return idx, nil, false
	}
	return idx, blk, true
}

func (s *Store) GetBestBlockHash() (util.Hash, bool) {
	data, err := s.db.Get([]byte{prefixBestBlock}, nil)
	if err != nil {
		return util.Hash{}, false
	}
	h, err := util.DeserializeHash(bytes.NewReader(data))
	if err != nil {
		return util.Hash{}, false
	}
	return h, true
}

func (s *Store) GetBlockHashByHeight(height int32) (util.Hash, bool) {
	data, err := s.db.Get(keyWithHeight(height), nil)
	if err != nil {
		return util.Hash{}, false
	}
	h, err := util.DeserializeHash(bytes.NewReader(data))
	if err != nil {
		return util.Hash{}, false
	}
	return h, true
}

func (s *Store) GetTransactionDescriptor(hash util.Hash) (*storage.TransactionDescriptor, bool) {
	data, err := s.db.Get(keyWithHash(prefixTxDesc, hash), nil)
	if err != nil {
		return nil, false
	}
	desc, err := deserializeDescriptor(data)
	if err != nil {
		return nil, false
	}
	if desc.Location == storage.LocationPool {
		if poolData, err := s.db.Get(keyWithHash(prefixPoolTx, hash), nil); err == nil {
			if t, err := tx.Deserialize(bytes.NewReader(poolData)); err == nil {
				desc.PoolTx = t
			}
		}
	}
	return desc, true
}

func (s *Store) HasTransaction(hash util.Hash) bool {
	ok, _ := s.db.Has(keyWithHash(prefixTxDesc, hash), nil)
	return ok
}

func (s *Store) GetTransaction(hash util.Hash) (*tx.Transaction, bool) {
	desc, ok := s.GetTransactionDescriptor(hash)
	if !ok {
		return nil, false
	}
	switch desc.Location {
	case storage.LocationPool:
		return desc.PoolTx, desc.PoolTx != nil
	case storage.LocationChain:
		_, blk, ok := s.GetBlock(desc.BlockHash)
		if !ok || desc.TxIndex >= len(blk.Transactions) {
			return nil, false
		}
		return blk.Transactions[desc.TxIndex], true
	default:
		return nil, false
	}
}

func (s *Store) GetOldestPoolTransactions(count int) []util.Hash {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()

	var out []util.Hash
	for iter.Seek([]byte{prefixPoolOrder}); iter.Valid() && len(out) < count; iter.Next() {
		key := iter.Key()
		if len(key) == 0 || key[0] != prefixPoolOrder {
			break
		}
		var h util.Hash
		copy(h[:], iter.Value())
		out = append(out, h)
	}
	return out
}

package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/ragline/core"
)

// Key prefixes for different data types. Variable length components of
// composite keys are terminated by keySep so that prefix scans never match
// a longer sibling value.
const (
	documentPrefix       = "doc:"
	documentHashPrefix   = "dochash:"
	documentOwnerPrefix  = "docown:"
	chunkPrefix          = "chk:"
	chunkDocumentPrefix  = "chkdoc:"
	chunkNamespacePrefix = "chkns:"
	jobPrefix            = "job:"
	jobActivePrefix      = "jobact:"
	jobRemotePrefix      = "jobrem:"
	jobOwnerPrefix       = "jobown:"
	vectorIndexPrefix    = "vidx:"
	vectorPrefix         = "vec:"
	checkpointPrefix     = "chkpt:"

	keySep = "\x00"
)

func joinKey(prefix string, parts ...string) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + len(keySep)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
		buf = append(buf, keySep...)
	}
	return buf
}

// appendTimeID appends a big endian timestamp and an id so that keys sort
// by creation time.
func appendTimeID(buf []byte, ts time.Time, id string) []byte {
	var stamp [8]byte
	binary.BigEndian.PutUint64(stamp[:], uint64(ts.UnixMicro()))
	buf = append(buf, stamp[:]...)
	return append(buf, id...)
}

func makeDocumentKey(id string) []byte {
	return []byte(documentPrefix + id)
}

// makeDocumentHashKey indexes documents by owner and content hash.
// Format: prefix owner SEP hash SEP
func makeDocumentHashKey(ownerID, contentHash string) []byte {
	return joinKey(documentHashPrefix, ownerID, contentHash)
}

// makeDocumentOwnerKey indexes documents by owner in creation order.
// Format: prefix owner SEP timestamp id
func makeDocumentOwnerKey(ownerID string, created time.Time, id string) []byte {
	return appendTimeID(makePartialDocumentOwnerKey(ownerID), created, id)
}

func makePartialDocumentOwnerKey(ownerID string) []byte {
	return joinKey(documentOwnerPrefix, ownerID)
}

func makeChunkKey(id string) []byte {
	return []byte(chunkPrefix + id)
}

// makeChunkDocumentKey indexes chunks by document and position.
// Format: prefix documentID SEP index
func makeChunkDocumentKey(documentID string, index int) []byte {
	buf := makePartialChunkDocumentKey(documentID)
	var pos [8]byte
	binary.BigEndian.PutUint64(pos[:], uint64(index))
	return append(buf, pos[:]...)
}

func makePartialChunkDocumentKey(documentID string) []byte {
	return joinKey(chunkDocumentPrefix, documentID)
}

// makeChunkNamespaceKey indexes chunks by namespace in id order.
// Format: prefix namespace SEP chunkID
func makeChunkNamespaceKey(ns core.Namespace, id string) []byte {
	return append(makePartialChunkNamespaceKey(ns), id...)
}

func makePartialChunkNamespaceKey(ns core.Namespace) []byte {
	return joinKey(chunkNamespacePrefix, string(ns))
}

func makeJobKey(id string) []byte {
	return []byte(jobPrefix + id)
}

func makeJobActiveKey(id string) []byte {
	return []byte(jobActivePrefix + id)
}

func makeJobRemoteKey(remoteID string) []byte {
	return []byte(jobRemotePrefix + remoteID)
}

func makeJobOwnerKey(ownerID string, created time.Time, id string) []byte {
	return appendTimeID(makePartialJobOwnerKey(ownerID), created, id)
}

func makePartialJobOwnerKey(ownerID string) []byte {
	return joinKey(jobOwnerPrefix, ownerID)
}

func makeVectorIndexKey(name string) []byte {
	return []byte(vectorIndexPrefix + name)
}

// makeVectorKey addresses one vector.
// Format: prefix index SEP namespace SEP id
func makeVectorKey(index string, ns core.Namespace, id string) []byte {
	return append(makePartialVectorKey(index, ns), id...)
}

func makePartialVectorKey(index string, ns core.Namespace) []byte {
	return joinKey(vectorPrefix, index, string(ns))
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(checkpointPrefix + processorType)
}

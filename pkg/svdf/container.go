package svdf

import (
	"encoding/json"
	"fmt"

	"github.com/mizunoh/blobvault/pkg/crypto"
	"github.com/mizunoh/blobvault/pkg/filecodec"
)

// InputFile is one plaintext file going into a container build.
type InputFile struct {
	Content  []byte
	Filename string
	MimeType string
	// FileID keeps the vault's id for the file. Empty generates one.
	FileID string
}

// BuildFull encrypts every input file under shareKey and assembles a new
// container from scratch. It returns the container bytes and the manifest
// that was embedded, so callers can drive later incremental builds without
// re-parsing.
func BuildFull(files []InputFile, meta Metadata, shareKey []byte) ([]byte, []ManifestEntry, error) {
	entries := make([]ManifestEntry, 0, len(files))
	units := make([][]byte, 0, len(files))

	offset := int64(HeaderSize)
	for _, f := range files {
		unit, fileID, err := filecodec.EncryptFile(f.Content, f.Filename, f.MimeType, shareKey, f.FileID)
		if err != nil {
			return nil, nil, fmt.Errorf("svdf: encrypt %q: %w", f.Filename, err)
		}
		entries = append(entries, ManifestEntry{
			ID:     fileID,
			Offset: offset,
			Size:   int64(len(unit)),
		})
		units = append(units, unit)
		offset += int64(len(unit))
	}

	return assemble(units, nil, entries, meta, shareKey)
}

// BuildIncremental produces a new container from a prior one: prior file
// unit bytes are carried over verbatim at their original offsets, removed
// ids become tombstones, and new files are appended after the prior file
// region. Only the header and the tail (manifest, metadata, appended
// units) differ from the prior container, which keeps delta uploads small.
func BuildIncremental(prior []byte, newFiles []InputFile, removedIDs []string, meta Metadata, shareKey []byte) ([]byte, []ManifestEntry, error) {
	hdr, err := ParseHeader(prior)
	if err != nil {
		return nil, nil, err
	}
	entries, err := ParseManifest(prior, shareKey)
	if err != nil {
		return nil, nil, err
	}
	if hdr.ManifestOffset > uint64(len(prior)) {
		return nil, nil, fmt.Errorf("%w: manifest offset %d beyond %d bytes", ErrInvalidFormat, hdr.ManifestOffset, len(prior))
	}

	for _, id := range removedIDs {
		found := false
		for i := range entries {
			if entries[i].ID == id && !entries[i].Deleted {
				entries[i].Deleted = true
				found = true
				break
			}
		}
		if !found {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownFileID, id)
		}
	}

	// Prior file region, header excluded, preserved byte for byte.
	region := prior[HeaderSize:hdr.ManifestOffset]

	units := make([][]byte, 0, len(newFiles))
	offset := int64(hdr.ManifestOffset)
	for _, f := range newFiles {
		unit, fileID, err := filecodec.EncryptFile(f.Content, f.Filename, f.MimeType, shareKey, f.FileID)
		if err != nil {
			return nil, nil, fmt.Errorf("svdf: encrypt %q: %w", f.Filename, err)
		}
		entries = append(entries, ManifestEntry{
			ID:     fileID,
			Offset: offset,
			Size:   int64(len(unit)),
		})
		units = append(units, unit)
		offset += int64(len(unit))
	}

	return assemble(units, region, entries, meta, shareKey)
}

// assemble lays out header, carried region, appended units, manifest, and
// metadata into the final container.
func assemble(units [][]byte, carried []byte, entries []ManifestEntry, meta Metadata, shareKey []byte) ([]byte, []ManifestEntry, error) {
	manifestJSON, err := json.Marshal(entries)
	if err != nil {
		return nil, nil, fmt.Errorf("svdf: marshal manifest: %w", err)
	}
	encManifest, err := crypto.Encrypt(manifestJSON, shareKey)
	if err != nil {
		return nil, nil, fmt.Errorf("svdf: encrypt manifest: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("svdf: marshal metadata: %w", err)
	}
	encMeta, err := crypto.Encrypt(metaJSON, shareKey)
	if err != nil {
		return nil, nil, fmt.Errorf("svdf: encrypt metadata: %w", err)
	}

	regionSize := len(carried)
	for _, u := range units {
		regionSize += len(u)
	}

	active := uint32(0)
	for _, e := range entries {
		if !e.Deleted {
			active++
		}
	}

	hdr := Header{
		Version:        Version,
		FileCount:      active,
		ManifestOffset: uint64(HeaderSize + regionSize),
		ManifestSize:   uint32(len(encManifest)),
		MetadataOffset: uint64(HeaderSize+regionSize) + uint64(len(encManifest)),
		MetadataSize:   uint32(len(encMeta)),
	}

	out := make([]byte, 0, HeaderSize+regionSize+len(encManifest)+len(encMeta))
	out = append(out, hdr.encode()...)
	out = append(out, carried...)
	for _, u := range units {
		out = append(out, u...)
	}
	out = append(out, encManifest...)
	out = append(out, encMeta...)
	return out, entries, nil
}

// ParseManifest decrypts and decodes the manifest region. A wrong share
// key surfaces as crypto.ErrAuthenticationFailure.
func ParseManifest(data []byte, shareKey []byte) ([]ManifestEntry, error) {
	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	raw, err := sliceRegion(data, hdr.ManifestOffset, uint64(hdr.ManifestSize), "manifest")
	if err != nil {
		return nil, err
	}
	plain, err := crypto.Decrypt(raw, shareKey)
	if err != nil {
		return nil, fmt.Errorf("svdf: decrypt manifest: %w", err)
	}
	var entries []ManifestEntry
	if err := json.Unmarshal(plain, &entries); err != nil {
		return nil, fmt.Errorf("%w: manifest decode: %v", ErrInvalidFormat, err)
	}
	return entries, nil
}

// ParseMetadata decrypts and decodes the share metadata region.
func ParseMetadata(data []byte, shareKey []byte) (*Metadata, error) {
	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	raw, err := sliceRegion(data, hdr.MetadataOffset, uint64(hdr.MetadataSize), "metadata")
	if err != nil {
		return nil, err
	}
	plain, err := crypto.Decrypt(raw, shareKey)
	if err != nil {
		return nil, fmt.Errorf("svdf: decrypt metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(plain, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata decode: %v", ErrInvalidFormat, err)
	}
	return &meta, nil
}

// ExtractFileEntry decrypts one file unit located by a manifest entry.
func ExtractFileEntry(data []byte, entry ManifestEntry, shareKey []byte) (*filecodec.FileHeader, []byte, error) {
	raw, err := sliceRegion(data, uint64(entry.Offset), uint64(entry.Size), "file unit")
	if err != nil {
		return nil, nil, err
	}
	return filecodec.DecryptFile(raw, shareKey)
}

func sliceRegion(data []byte, offset, size uint64, what string) ([]byte, error) {
	end := offset + size
	if end < offset || end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: %s [%d,%d) beyond %d bytes", ErrInvalidFormat, what, offset, end, len(data))
	}
	return data[offset:end], nil
}

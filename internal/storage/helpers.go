package storage

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil {
		*err = cErr
	}
}

// maskToBlob packs a boolean channel mask into one byte per channel.
func maskToBlob(mask []bool) []byte {
	if mask == nil {
		return nil
	}
	blob := make([]byte, len(mask))
	for i, b := range mask {
		if b {
			blob[i] = 1
		}
	}
	return blob
}

func blobToMask(blob []byte) []bool {
	if blob == nil {
		return nil
	}
	mask := make([]bool, len(blob))
	for i, b := range blob {
		mask[i] = b != 0
	}
	return mask
}

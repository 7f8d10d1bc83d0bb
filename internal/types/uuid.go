package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex pc_01HZX4M8Q2W5N3K7R9T1V6Y0AB
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	// Prefixes for all domains and entities

	UUID_PREFIX_SUBSCRIPTION         = "subs"
	UUID_PREFIX_PRODUCT              = "prod"
	UUID_PREFIX_PRICE_CHANGE         = "pc"
	UUID_PREFIX_PRODUCT_PRICE_CHANGE = "ppc"
	UUID_PREFIX_NOTIFICATION         = "notif"
	UUID_PREFIX_SWEEP                = "sweep"
	UUID_PREFIX_MESSAGE              = "msg"
	UUID_PREFIX_TRANSACTION          = "tx"
)

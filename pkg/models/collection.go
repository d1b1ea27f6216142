package models

// Remote collection names for records mirrored outside the local store.
const (
	CollectionCustomers = "customers"
	CollectionSales     = "sales"
)

// Collections lists every mirrored collection.
var Collections = []string{CollectionCustomers, CollectionSales}

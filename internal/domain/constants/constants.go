// Package constants holds the identifiers shared across layers.
package constants

// Environments
const (
	EnvDevelop    = "develop"
	EnvLocal      = "local"
	EnvProduction = "production"
)

// Pub/Sub providers
const (
	PubSubProviderGoogle = "google"
	PubSubProviderLocal  = "local"
	PubSubProviderNoop   = "noop"
)

// Store drivers
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Collaborator modes
const (
	CollaboratorsMock = "mock"
	CollaboratorsLive = "live"
)

// Messenger providers
const (
	MessengerProviderLog      = "log"
	MessengerProviderTwilio   = "twilio"
	MessengerProviderFirebase = "firebase"
)

// Delivery providers
const (
	DeliveryProviderLog  = "log"
	DeliveryProviderHTTP = "http"
)

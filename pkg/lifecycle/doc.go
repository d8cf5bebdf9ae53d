// Package lifecycle implements the event-driven lifecycle of hosted file
// assets: producing resized image variants, tracking whether an asset is
// still standalone, cascading storage deletes, and garbage-collecting
// assets nobody ever attached to anything.
//
// The package owns no I/O of its own. It consumes a MetadataStore, a
// SearchIndex, an ObjectStore and an ImageTransformer; implementations live
// under the repo/, storage/ and imaging/ subpackages. A Pipeline wires the
// collaborators into the four handlers and the Dispatcher that routes each
// ChangeEvent to exactly one of them.
//
// Error Handling
//
// Every handler is a terminal boundary. Failures are classified into the
// tagged error kinds declared in errors.go, logged with the asset id and
// operation, and swallowed by the Dispatcher. Retry happens implicitly
// through event redelivery or the next scheduled sweep.
package lifecycle

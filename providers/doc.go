// Package providers holds the form exchange shared by the backend adapters.
// Each backend lives in its own subpackage and implements core.BackendAdapter.
package providers

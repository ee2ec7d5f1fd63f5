// Package secrets obtains the classifier service key.
//
// The key comes from PORTKILLER_ICA_SERVICE_KEY when set, otherwise from the
// setec secret store. Cached makes sure the lookup happens once per provider.
package secrets

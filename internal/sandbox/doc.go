/*
Package sandbox runs untrusted mini-app scripts in isolated goja contexts.

# Isolation

Every app id maps to one synthetic origin (https://<app>.miniapp.local).
Assets resolve only below the app's install directory; a path whose
canonical form escapes that directory is reported as not found. Navigation
is limited to the manifest's pages allowlist, and blocked attempts are
logged but never surfaced to the script.

# Script Bridge

Scripts see a WalletBridge global:

	WalletBridge.log(msg)
	WalletBridge.getAppInfo()
	WalletBridge.navigateTo(path)
	WalletBridge.sendTransactionResponse(requestId, json)   // signer
	WalletBridge.sendUniversalResponse(requestId, json)     // signer
	WalletBridge.requestTransaction(json)                   // caller, returns a Promise

plus addEventListener/removeEventListener, setTimeout/clearTimeout and a
captured console. require, process, module and exports are removed.

# Threading

A Context is not safe for concurrent use. Every method must be called from
the goroutine owning its Scheduler; timers and async results are posted
back through Scheduler.Post.
*/
package sandbox

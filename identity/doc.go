// Package identity adapts identity providers to the operations movieflix
// needs: email/password sign-in, federated (Google) sign-in, registration,
// profile updates and sign-out.
//
// A Provider is one auth instance, the server-side counterpart of the auth
// object a browser SDK keeps per tab. It tracks that instance's current user
// and publishes every change to listeners registered with OnChange. A Factory
// hands out fresh instances; the web front end creates one per browser.
//
// Two factories are available:
//
//   - FirebaseClient talks to the Firebase Identity Toolkit REST API
//   - Directory is a self-hosted account directory with bcrypt password
//     hashes, signed ID tokens and optional JSON file persistence
//
// Every failure is returned as an *AuthError whose Message carries the
// provider's text unchanged so that forms can show it to the user.
package identity

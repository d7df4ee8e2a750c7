// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Memberauth Contributors

// Package auth provides session-backed email/password authentication.
//
// # Domain Types
//
// Member is the identity record and Credential its single authentication
// record. New credentials should be created with NewCredential; mutations go
// through the Set*/RemoveAttribute methods so change tracking stays accurate.
//
// # Services
//
//   - SessionManager - per-request session check, login, logout, forced
//     login and remember-me
//   - CredentialService - create, update, password change and reset, and
//     deletion of members
//
// Both are created with constructors that validate dependencies. Storage is
// abstracted behind CredentialStore, SessionState and RememberMeStore.
package auth

// Package core contains the DCB transaction domain: the role-aware status
// planner, the role orchestrators, the audit trail and the service that binds
// them to the circulation gateway. Adapters depend on this package; core must
// not depend on transport, storage or queue adapters.
package core

// Package fileutil provides small filesystem helpers shared by the binary
// resolver and the workspace provisioner: private directory creation,
// executable detection, and tree removal with wrapped errors.
package fileutil

// Package domain holds the entities of the scan gateway: members and their
// OTP verifications, scan tasks and their status lattice, access logs,
// download tokens and task history. Entities validate themselves and know
// nothing about storage or transport.
package domain

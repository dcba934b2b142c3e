// Package mqtt defines the broker boundary and the fleet topic layout.
package mqtt

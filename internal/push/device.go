package push

import (
	"fmt"
	"time"
)

//Platform Push platform of a device.
type Platform string

//Environment Deployment tier of an APNS device.
type Environment string

const (
	//PlatformGCM Google Cloud Messaging (Firebase Cloud Messaging).
	PlatformGCM Platform = "GCM"
	//PlatformAPNS Apple Push Notification service.
	PlatformAPNS Platform = "APNS"
)

const (
	//EnvDebug Development builds, APNS sandbox gateway.
	EnvDebug Environment = "DEBUG"
	//EnvBeta Beta (TestFlight) builds.
	EnvBeta Environment = "BETA"
	//EnvProd Store builds.
	EnvProd Environment = "PROD"
)

//Platforms All known platforms.
var Platforms = []Platform{PlatformGCM, PlatformAPNS}

//Environments All APNS environments.
var Environments = []Environment{EnvDebug, EnvBeta, EnvProd}

//Valid Whether the platform is known.
func (p Platform) Valid() bool {
	return p == PlatformGCM || p == PlatformAPNS
}

//HasEnvironments Whether devices of the platform are separated by environment.
func (p Platform) HasEnvironments() bool {
	return p == PlatformAPNS
}

//Valid Whether the environment is one of DEBUG, BETA or PROD.
func (e Environment) Valid() bool {
	switch e {
	case EnvDebug, EnvBeta, EnvProd:
		return true
	default:
		return false
	}
}

//DeviceRecord Registered device.
type DeviceRecord struct {
	ID             string      `json:"id" firestore:"-"`
	RegistrationID string      `json:"registrationId" firestore:"registrationId"`
	HardwareID     string      `json:"hardwareId,omitempty" firestore:"hardwareId"`
	UserID         string      `json:"userId,omitempty" firestore:"userId"`
	Name           string      `json:"name,omitempty" firestore:"name"`
	Active         bool        `json:"active" firestore:"active"`
	CreatedAt      time.Time   `json:"createdAt" firestore:"createdAt"`
	Platform       Platform    `json:"platform" firestore:"platform"`
	Environment    Environment `json:"environment,omitempty" firestore:"environment"`
}

func (d DeviceRecord) String() string {
	if d.Name != "" {
		return d.Name
	}
	if d.HardwareID != "" {
		return d.HardwareID
	}
	if d.UserID != "" {
		return fmt.Sprintf("%v device for %v", d.Platform, d.UserID)
	}
	return fmt.Sprintf("%v device %v", d.Platform, d.ID)
}

//Channel One logical delivery pipe.
type Channel struct {
	Platform    Platform    `json:"platform"`
	Environment Environment `json:"environment,omitempty"`
}

func (c Channel) String() string {
	if c.Environment == "" {
		return string(c.Platform)
	}
	return fmt.Sprintf("%v/%v", c.Platform, c.Environment)
}

//Channels All channels the engine can deliver to.
func Channels() []Channel {
	channels := []Channel{{Platform: PlatformGCM}}
	for _, env := range Environments {
		channels = append(channels, Channel{Platform: PlatformAPNS, Environment: env})
	}
	return channels
}

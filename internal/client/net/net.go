package net

import (
	"fmt"

	gonm "github.com/Wifx/gonetworkmanager/v2"
	"github.com/DisasterSentry/client/pkg/log"
	"go.uber.org/zap"
)

// This maps to the NetworkManager connection.type
type NetworkInterfaceType string

const (
	Ethernet NetworkInterfaceType = "802-3-ethernet"
	WiFi     NetworkInterfaceType = "802-11-wireless"
	GSM      NetworkInterfaceType = "gsm"
)

// Service answers the two questions the upload path cares about: is there
// any connectivity at all, and what state is each uplink type in.
type Service interface {
	HasConnectivity() bool
	GetConnectionStateStr(NetworkInterfaceType) (string, error)
	IsNetworkTypeActive(NetworkInterfaceType) (bool, error)
	Shutdown()
}

type networkDbusService struct {
	nm gonm.NetworkManager
}

func NewService() (Service, error) {
	nm, err := gonm.NewNetworkManager()
	if err != nil {
		return nil, err
	}

	return &networkDbusService{nm: nm}, nil
}

type ConnectionNotAvailable struct {
	connectionType NetworkInterfaceType // optional
}

func (e *ConnectionNotAvailable) Error() string {
	return fmt.Sprintf("connection with type %v: not available", string(e.connectionType))
}

func (n *networkDbusService) getActiveConnections() []gonm.ActiveConnection {
	activeConnections, err := n.nm.GetPropertyActiveConnections()
	if err != nil {
		log.Error("Could not get active connections from NetworkManager", zap.Error(err))
		return nil
	}

	return activeConnections
}

func (n *networkDbusService) getActiveConnectionByType(t NetworkInterfaceType) gonm.ActiveConnection {
	for _, con := range n.getActiveConnections() {
		conT, err := con.GetPropertyType()
		if err != nil {
			log.Warn("Skipping active network connections due to error", zap.Error(err))
			continue
		}

		if conT == string(t) {
			return con
		}
	}

	return nil
}

// Gets the connection state for a specified type
func (n *networkDbusService) getConnectionStateByType(netifType NetworkInterfaceType) (gonm.NmActiveConnectionState, error) {
	ac := n.getActiveConnectionByType(netifType)
	if ac == nil {
		return gonm.NmActiveConnectionStateUnknown, &ConnectionNotAvailable{netifType}
	}

	conState, err := ac.GetPropertyState()
	if err != nil {
		return gonm.NmActiveConnectionStateUnknown, err
	}

	return conState, nil
}

func activeConnectionStateToString(r gonm.NmActiveConnectionState) string {
	switch r {
	case gonm.NmActiveConnectionStateUnknown:
		return "unknown"
	case gonm.NmActiveConnectionStateActivating:
		return "preparing"
	case gonm.NmActiveConnectionStateActivated:
		return "active"
	case gonm.NmActiveConnectionStateDeactivating:
		return "deactivating"
	case gonm.NmActiveConnectionStateDeactivated:
		return "deactivated"
	}

	// Fallback
	return "unknown_nm_broken"
}

// GetConnectionStateStr returns the connection state of the selected type as String
func (n *networkDbusService) GetConnectionStateStr(netifType NetworkInterfaceType) (string, error) {
	r, err := n.getConnectionStateByType(netifType)
	if err != nil {
		return "not_configured", err
	}

	return activeConnectionStateToString(r), nil
}

// IsNetworkTypeActive checks if the supplied network type is active
func (n *networkDbusService) IsNetworkTypeActive(netifType NetworkInterfaceType) (bool, error) {
	s, err := n.getConnectionStateByType(netifType)
	if err != nil {
		return false, err
	}

	return s == gonm.NmActiveConnectionStateActivated, nil
}

// hasSingleActiveConnection checks if the system has at-least one functioning active connection
func (n *networkDbusService) hasSingleActiveConnection() bool {
	for _, con := range n.getActiveConnections() {
		state, err := con.GetPropertyState()

		// Bail if we found one active connection
		if err == nil && state == gonm.NmActiveConnectionStateActivated {
			return true
		}
	}

	return false
}

func (n *networkDbusService) HasConnectivity() bool {
	// Leverage the connectivity check if available
	checkAvailable, err := n.nm.GetPropertyConnectivityCheckEnabled()
	if err != nil || !checkAvailable {
		log.Debug("NM does not have connectivity checking enabled", zap.Error(err))

		// Fall-back to checking if there is a single active connection
		return n.hasSingleActiveConnection()
	}

	nmConnectivity, err := n.nm.GetPropertyConnectivity()
	if err != nil {
		log.Error("failure during connectivity check", zap.Error(err))
		return false
	}

	// Check if we have full connectivity
	log.Debug("connectivity check finished", zap.String("state", nmConnectivity.String()))
	return nmConnectivity == gonm.NmConnectivityFull
}

func (n *networkDbusService) Shutdown() {
}

package systemd

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/DisasterSentry/client/pkg/log"
	"github.com/DisasterSentry/client/pkg/systemd/dbuscon"
)

type Connector struct {
	sync.Mutex

	client            *dbuscon.Client
	signalCh          chan *dbus.Signal
	jobRemoveListener struct {
		sync.Mutex
		jobs    map[dbus.ObjectPath]chan<- string
		matcher []dbus.MatchOption
	}
}

// init initializes the systemd connector
func (c *Connector) init() error {
	c.jobRemoveListener.jobs = make(map[dbus.ObjectPath]chan<- string)
	c.client = dbuscon.NewDbusClient()

	c.jobRemoveListener.matcher = []dbus.MatchOption{
		dbus.WithMatchInterface(BusManagerInterface),
		dbus.WithMatchMember(BusMemberJobRemoved),
	}

	// Connect to dbus
	if err := c.client.Connect(); err != nil {
		return err
	}

	// Match all jobs removed signal so we can get their results
	conn := c.client.GetConnection()
	if conn == nil {
		log.Error("connection was nil")
		return &dbuscon.NotConnectedError{}
	}

	// Create a slightly buffered channel
	c.signalCh = make(chan *dbus.Signal, 10)
	conn.Signal(c.signalCh)

	// Start the signal listener
	go c.listenForSignals()

	// Add the match signal
	conn.AddMatchSignal(c.jobRemoveListener.matcher...)
	log.Info("systemd/dbus initialization complete")

	return nil
}

// Create a new connector for systemd
func NewConnector() (*Connector, error) {
	c := Connector{}
	c.Lock()
	defer c.Unlock()

	return &c, c.init()
}

// GetRawDbusConnection returns the currently active dbus connection
func (c *Connector) GetRawDbusConnection() *dbus.Conn {
	if !c.Connected() {
		return nil
	}

	return c.client.GetConnection()
}

func (c *Connector) Shutdown() error {
	err := c.client.GetConnection().RemoveMatchSignal(c.jobRemoveListener.matcher...)
	if err != nil {
		return err
	}

	// Close the signal channel
	close(c.signalCh)
	return nil
}

func (c *Connector) jobCompleteSignal(signal *dbus.Signal) {
	var id uint32
	var job dbus.ObjectPath
	var unit string
	var result string
	dbus.Store(signal.Body, &id, &job, &unit, &result)

	c.jobRemoveListener.Lock()
	// If a listener for this exists, inform it
	out, ok := c.jobRemoveListener.jobs[job]
	if ok {
		out <- result
		delete(c.jobRemoveListener.jobs, job)
	}
	c.jobRemoveListener.Unlock()
}

// manageUnits provides the base for common systemd unit management tasks
func (c *Connector) manageUnits(unitName string, method string, ctx context.Context, ch chan<- string) error {
	if !c.Connected() {
		return &dbuscon.NotConnectedError{}
	}

	// Grab the connection
	conn := c.client.GetConnection()

	service := conn.Object(BusObjectSystemdDest, BusObjectSystemdPath)
	result := service.CallWithContext(ctx, method, 0, unitName, "replace")

	// Bail out early if we encountered an error
	if result.Err != nil {
		return result.Err
	}

	// If the caller was interested in the result we need to register the callback
	if ch != nil {
		var p dbus.ObjectPath
		if err := result.Store(&p); err != nil {
			return err
		}
		c.jobRemoveListener.jobs[p] = ch
	}

	return nil
}

// manageUnitSync synchronously manages units
func (c *Connector) manageUnitSync(unitName string, method string, ctx context.Context) (bool, error) {
	ch := make(chan string)
	defer close(ch)

	err := c.manageUnits(unitName, method, ctx, ch)

	if err != nil {
		return false, err
	}

	// Wait for the result
	return <-ch == JobResultDone, nil
}

// RestartUnit synchronously restarts an unit and returns true if it succeded
func (c *Connector) RestartUnit(unitName string, ctx context.Context) (bool, error) {
	return c.manageUnitSync(unitName, BusInterfaceRestartUnit, ctx)
}

// StopUnit synchronously stops an unit and returns true if it succeded
func (c *Connector) StopUnit(unitName string, ctx context.Context) (bool, error) {
	return c.manageUnitSync(unitName, BusInterfaceStopUnit, ctx)
}

// StartUnit synchronously starts an unit and returns true if it succeded
func (c *Connector) StartUnit(unitName string, ctx context.Context) (bool, error) {
	return c.manageUnitSync(unitName, BusInterfaceStartUnit, ctx)
}

func getUnitObjectPath(unitName string) dbus.ObjectPath {
	return dbus.ObjectPath(BusObjectSystemdPath + "/unit/" + EscapeObjectPath(unitName))
}

// Retrieves the unit state for a specified unit
func (c *Connector) CheckUnitState(unitName string, ctx context.Context) (string, error) {
	if !c.Connected() {
		return "", &dbuscon.NotConnectedError{}
	}

	// Grab the connection
	conn := c.client.GetConnection()
	unit := conn.Object(BusObjectSystemdDest, getUnitObjectPath(unitName))

	var state string
	err := unit.CallWithContext(ctx, BusMemberGetProp, 0,
		BusObjectSystemdDestUnit, BusObjectPropertyActiveState).Store(&state)

	return state, err
}

// Connected returns if the client is correctly connected
func (c *Connector) Connected() bool {
	_, ok := c.client.Connected()
	return ok
}

// This go-routine listens for signals
func (c *Connector) listenForSignals() {
	for {
		signal, ok := <-c.signalCh
		if !ok {
			log.Debug("signal channel terminated")
			return
		}

		// If its a job removed signal, our job terminated
		if signal.Name == BusSignalJobRemoved {
			c.jobCompleteSignal(signal)
		}
	}
}

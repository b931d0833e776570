/*Package usbtmc implements a host-side driver for the USB Test and
Measurement Class, including the USB488 subclass used by IEEE 488.2/SCPI
instruments such as oscilloscopes, signal generators, and electronic
loads.

The driver is a cooperative, non-blocking protocol engine: it owns no
thread, performs at most one control or bulk transfer per call, and must
be advanced by repeated calls to (*Driver).Run from the owner's main
loop. It does not enumerate USB devices, drive a host-controller chip,
or keep a wall clock; those are borrowed from the owner through the
HostTransport and Clock interfaces.

A typical session:

	d := usbtmc.NewDriver(transport, clock, sink)
	if err := d.Attach(parent, port, lowSpeed); err != nil {
		log.Fatal(err)
	}
	d.Transmit(len(cmd), cmd)
	for !d.TransmitDone() {
		d.Run(true)
	}
	d.Request(1024)
	for !d.IsIdle() {
		d.Run(true)
	}

Bytes the instrument returns arrive one at a time through the sink's
OnReceived, in wire order.
*/
package usbtmc

/*
Package ddnsclient keeps a Dynamic DNS record pointed at the caller's public IP address.

Usage will always start with [ddnsclient.New],
which returns the DDNSClient implementation.
New requires a domain name which will be updated,
a [Resolver] that discovers the current IP and a [Provider] that pushes it somewhere.
[UsingServer] registers both against a DDNS update server,
which exposes "GET /api/ip" and "POST /api/dns/update".

The client runs one update cycle at a time.
A failed cycle is logged and retried after the configured interval;
it never stops the loop.
Additional client configuration options are listed in the docs for New.
*/
package ddnsclient

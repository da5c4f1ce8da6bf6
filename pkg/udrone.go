/*
Package udrone implements the host side of a small, loss-tolerant
command-and-reply protocol for coordinating fleets of test drones over IP
multicast.

Protocol Overview:
  - A Host discovers idle drones by multicasting a "!whois" control
    message and collecting replies.
  - A Host groups drones into named Groups ("!assign") and dispatches user
    commands to a whole Group at once over the same multicast address.
  - Replies are at-least-once and duplicate-tolerant: a drone may answer
    "accept" to say it is still working before a terminal "status" or
    "unsupported" reply, and a Host may re-send a command if it hasn't
    heard from everyone yet.

Wire format: one self-describing JSON envelope per UDP datagram, sent to
the fixed multicast endpoint 239.6.6.6:21337, capped at 32 KiB:

	{"from": "<sender id>", "to": "<group id or drone id>", "type": "<message type>", "seq": <uint>, "data": {...}}

Message types beginning with "!" are control verbs ("!whois", "!assign",
"!reset"); all others are user commands defined by whatever runs on the
drones. Reply types the host understands: "status" (terminal, data.code
0 = success), "accept" (non-terminal, still working), "unsupported"
(terminal, command not understood).

This package deliberately does not parse CLI flags, load configuration
files, or run an interactive shell — see cmd/udronectl for a driver built
on top of it.
*/
package udrone

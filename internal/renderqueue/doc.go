// Package renderqueue maintains the FIFO waiting list a finished run joins
// before the downstream audio render worker picks it up. Position assignment
// is a transactional count-then-insert so concurrent completions always
// receive unique, consecutive positions.
package renderqueue

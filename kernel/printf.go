package main

import (
	_ "runtime"
	_ "unsafe"
)

//go:linkname uart_putc uart_putc
func uart_putc(c byte)

func printInt(num int) {
	// Int in Go ranges from -9,223,372,036,854,775,808
	//					 to   9,223,372,036,854,775,807.
	// We need roughly 20 bytes to store it.
	var buf [20]byte
	i := 0

	if num < 0 {
		uart_putc('-')
		num = -num
	}
	if num == 0 {
		uart_putc('0')
		return
	}

	for num > 0 {
		buf[i] = byte(num%10) + '0'
		i++
		num = num / 10
	}

	for i = i - 1; i >= 0; i-- {
		uart_putc(buf[i])
	}
}

func printUint(num uint64) {
	var buf [20]byte
	i := 0
	if num == 0 {
		uart_putc('0')
		return
	}
	for num > 0 {
		buf[i] = byte(num%10) + '0'
		i++
		num = num / 10
	}
	for i = i - 1; i >= 0; i-- {
		uart_putc(buf[i])
	}
}

const hexDigits = "0123456789abcdef"

func printHex(num uint64) {
	uart_putc('0')
	uart_putc('x')
	if num == 0 {
		uart_putc('0')
		return
	}
	var buf [16]byte
	i := 0
	for num > 0 {
		buf[i] = hexDigits[num%16]
		i++
		num = num / 16
	}
	for i = i - 1; i >= 0; i-- {
		uart_putc(buf[i])
	}
}

func printString(str string) {
	for _, c := range str {
		uart_putc(byte(c))
	}
}

// asUint64 widens any of this codebase's common integer/pointer argument
// types to a uint64 for %x/%u/%p, so callers can hand printf a uintptr, an
// int, or a kerrno without a cast at every call site.
func asUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uintptr:
		return uint64(n), true
	case int:
		return uint64(int64(n)), true
	case int64:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case kerrno:
		return uint64(int64(n)), true
	default:
		return 0, false
	}
}

// printf is the kernel's only formatted-output primitive, used the way the
// teacher uses it for boot progress lines: %d, %s, %c as in the original,
// plus %x/%p (hex) and %u (unsigned decimal) for the addresses and causes
// the trap and syscall layers print. An unrecognized verb is printed
// literally ('%' followed by the verb character); an argument of a type a
// numeric or %c verb cannot print comes out as '?'. %s panics when its
// argument is not a string.
func printf(format string, args ...interface{}) {
	argIdx := 0
	for i := 0; i < len(format); i++ {
		if format[i] == '%' && i+1 < len(format) {
			i++
			switch format[i] {
			case 'd':
				switch v := args[argIdx].(type) {
				case int:
					printInt(v)
				default:
					if n, ok := asUint64(v); ok {
						printInt(int(int64(n)))
					} else {
						uart_putc('?')
					}
				}
				argIdx++
			case 'u':
				if n, ok := asUint64(args[argIdx]); ok {
					printUint(n)
				} else {
					uart_putc('?')
				}
				argIdx++
			case 'x', 'p':
				if n, ok := asUint64(args[argIdx]); ok {
					printHex(n)
				} else {
					uart_putc('?')
				}
				argIdx++
			case 's':
				printString(args[argIdx].(string))
				argIdx++
			case 'c':
				switch v := args[argIdx].(type) {
				case int:
					uart_putc(byte(v))
				case int32:
					uart_putc(byte(v))
				case byte:
					uart_putc(v)
				default:
					uart_putc('?')
				}
				argIdx++
			case '%':
				uart_putc('%')
			default:
				uart_putc('%')
				uart_putc(byte(format[i]))
			}
		} else {
			uart_putc(byte(format[i]))
		}
	}
}

// kpanic prints a formatted message and then panics, for the call sites
// that want a printf-style message attached to a fatal kernel error.
func kpanic(format string, args ...interface{}) {
	printf(format, args...)
	uart_putc('\n')
	panic(format)
}

package main

import (
	"flag"
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "validate":
		err = validateCmd(os.Args[2:])
	case "list":
		err = listCmd(os.Args[2:])
	case "dump":
		err = dumpCmd(os.Args[2:])
	case "nbt":
		err = nbtCmd(os.Args[2:])
	case "index":
		err = indexCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: regiontool <command> [flags]

commands:
  validate [-deep] <file.mca|dir>...   check header spans and records
  list <file.mca>                      list present chunks
  dump -world <dir> -x <cx> -z <cz>    print a chunk record and its sections
  nbt <file>                           print a (gzipped) NBT file
  index -world <dir> [chunks|failures] query the save index`)
}

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ExitOnError)
}

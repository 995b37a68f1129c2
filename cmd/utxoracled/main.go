// Copyright (c) 2025 The UTXOracle developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .

package main

import "github.com/utxoracle/utxoracled/cmd"

func main() {
	cmd.Execute()
}

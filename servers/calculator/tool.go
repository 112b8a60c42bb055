package calculator

import "github.com/copperline/toolhost"

var toolList = []toolhost.ToolDescriptor{
	{
		Name:        "add",
		Description: "Add two numbers.",
		InputSchema: binarySchema,
	},
	{
		Name:        "subtract",
		Description: "Subtract b from a.",
		InputSchema: binarySchema,
	},
	{
		Name:        "multiply",
		Description: "Multiply two numbers.",
		InputSchema: binarySchema,
	},
	{
		Name:        "divide",
		Description: "Divide a by b. Fails when b is zero.",
		InputSchema: binarySchema,
	},
	{
		Name:        "power",
		Description: "Raise base to the given exponent.",
		InputSchema: powerSchema,
	},
	{
		Name:        "calculate",
		Description: "Evaluate an arithmetic expression with +, -, *, / and parentheses.",
		InputSchema: calculateSchema,
	},
}

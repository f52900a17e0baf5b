package executor

// pythonPrelude defines the mcp object plans call tools through. Requests
// go out on the real stdout, replies come back on stdin, one JSON line each.
const pythonPrelude = `import asyncio as _cortexr_asyncio
import inspect as _cortexr_inspect
import json as _cortexr_json
import sys as _cortexr_sys


class _CortexrContent:
    def __init__(self, block):
        self.type = block.get("type", "text")
        self.text = block.get("text", "")

    def __repr__(self):
        return self.text


class _CortexrToolResult:
    def __init__(self, payload):
        self.content = [_CortexrContent(b) for b in (payload.get("content") or [])]
        self.isError = bool(payload.get("isError", False))

    def __repr__(self):
        return "\n".join(c.text for c in self.content)


class _CortexrSession:
    def call_tool_sync(self, name, arguments=None):
        _cortexr_sys.stdout.flush()
        request = _cortexr_json.dumps({"name": name, "args": arguments or {}}, default=str)
        _cortexr_sys.__stdout__.write("@@TOOL " + request + "\n")
        _cortexr_sys.__stdout__.flush()
        line = _cortexr_sys.stdin.readline()
        if not line:
            raise RuntimeError("tool bridge closed")
        return _CortexrToolResult(_cortexr_json.loads(line))

    async def call_tool(self, name, arguments=None):
        return self.call_tool_sync(name, arguments)


mcp = _CortexrSession()
`

// pythonEpilogue runs solve(), awaiting it when needed, and reports the
// returned value on its own line.
const pythonEpilogue = `

def _cortexr_main():
    result = solve()
    if _cortexr_inspect.isawaitable(result):
        result = _cortexr_asyncio.run(result)
    _cortexr_sys.stdout.flush()
    _cortexr_sys.__stdout__.write("@@RESULT " + _cortexr_json.dumps(str(result)) + "\n")
    _cortexr_sys.__stdout__.flush()


_cortexr_main()
`
